package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/world"
)

// DiagnosticsSystem periodically logs grid occupancy for cell-size tuning.
// Phase 1 (PostUpdate).
type DiagnosticsSystem struct {
	svc      *world.Service
	log      *zap.Logger
	interval time.Duration

	elapsed time.Duration
}

func NewDiagnosticsSystem(svc *world.Service, interval time.Duration, log *zap.Logger) *DiagnosticsSystem {
	return &DiagnosticsSystem{svc: svc, log: log, interval: interval}
}

func (s *DiagnosticsSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *DiagnosticsSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0

	st := s.svc.Stats()
	s.log.Info("grid occupancy",
		zap.Int("total_cells", st.TotalCells),
		zap.Int("used_cells", st.UsedCells),
		zap.Int("max_per_cell", st.MaxPerCell),
		zap.Int("overflows", st.Overflows),
		zap.Int("entities", s.svc.Registry().Len()))
}
