package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/persist"
	"github.com/worldsim/server/internal/world"
)

// SnapshotSystem batch-saves dirty entities on a fixed interval.
// Phase 2 (Persist). The grid is never saved; a restore relinks everything.
type SnapshotSystem struct {
	svc      *world.Service
	repo     *persist.SnapshotRepo
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration

	elapsed time.Duration
}

func NewSnapshotSystem(svc *world.Service, repo *persist.SnapshotRepo, interval, timeout time.Duration, log *zap.Logger) *SnapshotSystem {
	return &SnapshotSystem{
		svc:      svc,
		repo:     repo,
		log:      log,
		interval: interval,
		timeout:  timeout,
	}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(dt time.Duration) {
	if s.repo == nil {
		return
	}
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.SaveNow()
}

// SaveNow persists every dirty entity immediately. Also called on shutdown.
func (s *SnapshotSystem) SaveNow() {
	if s.repo == nil {
		return
	}

	var rows []persist.EntityRow
	var dirty []*world.Entity
	s.svc.Registry().Each(func(e *world.Entity) {
		if !e.Dirty {
			return
		}
		dirty = append(dirty, e)
		rows = append(rows, persist.EntityRow{
			ID:        e.ID,
			Archetype: e.Archetype,
			Solid:     int16(e.Solid),
			OriginX:   e.Origin.X,
			OriginY:   e.Origin.Y,
			OriginZ:   e.Origin.Z,
			VelX:      e.Velocity.X,
			VelY:      e.Velocity.Y,
			VelZ:      e.Velocity.Z,
		})
	})
	if len(rows) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.repo.SaveAll(ctx, rows); err != nil {
		s.log.Error("snapshot save failed", zap.Int("entities", len(rows)), zap.Error(err))
		return
	}
	for _, e := range dirty {
		e.Dirty = false
	}
	s.log.Debug("snapshot saved", zap.Int("entities", len(rows)))
}
