package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/worldsim/server/internal/core/event"
	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/world"
)

// CleanupSystem flushes the deferred destroy queue at tick end.
// Phase 3 (Cleanup). Emits EntityDestroyed for every entity actually freed.
type CleanupSystem struct {
	svc *world.Service
	bus *event.Bus
	log *zap.Logger
}

func NewCleanupSystem(svc *world.Service, bus *event.Bus, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{svc: svc, bus: bus, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	pending := s.svc.PendingDestroys()
	if len(pending) == 0 {
		return
	}

	// Capture views before the flush frees the slots. An id queued twice
	// only gets one event.
	views := make([]world.EntityView, 0, len(pending))
	seen := make(map[world.EntityID]struct{}, len(pending))
	for _, id := range pending {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v, err := s.svc.Registry().Get(id); err == nil {
			views = append(views, v)
		}
	}

	n := s.svc.FlushDestroyQueue()
	for _, v := range views {
		event.Emit(s.bus, event.EntityDestroyed{EntityID: v.ID, Archetype: v.Archetype})
	}
	s.log.Debug("destroyed entities", zap.Int("count", n))
}
