package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/geom"
	"github.com/worldsim/server/internal/world"
)

// MovementSystem advances entities along their velocities.
// Phase 0 (Update). Each move follows the strict per-entity sequence:
// unlink, set origin, relink, then test the new position. A blocked move is
// reverted the same way, so the grid always matches the entity's box.
type MovementSystem struct {
	svc *world.Service
	log *zap.Logger

	moved []world.EntityID
}

func NewMovementSystem(svc *world.Service, log *zap.Logger) *MovementSystem {
	return &MovementSystem{svc: svc, log: log}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Moved returns the entities that changed position this tick. Valid until
// the next Update.
func (s *MovementSystem) Moved() []world.EntityID {
	return s.moved
}

func (s *MovementSystem) Update(dt time.Duration) {
	s.moved = s.moved[:0]
	step := dt.Seconds()
	bounds := s.svc.WorldBounds()

	s.svc.Registry().Each(func(e *world.Entity) {
		if e.Velocity == (geom.Vec3{}) {
			return
		}
		s.moveOne(e, step, bounds)
	})
}

func (s *MovementSystem) moveOne(e *world.Entity, step float64, bounds geom.Box) {
	id := e.ID
	oldOrigin := e.Origin
	newOrigin := e.Origin.Add(e.Velocity.Scale(step))

	// Bounce off the nominal world bounds.
	if newOrigin.X < bounds.Min.X || newOrigin.X > bounds.Max.X {
		e.Velocity.X = -e.Velocity.X
		newOrigin.X = oldOrigin.X
	}
	if newOrigin.Y < bounds.Min.Y || newOrigin.Y > bounds.Max.Y {
		e.Velocity.Y = -e.Velocity.Y
		newOrigin.Y = oldOrigin.Y
	}
	if newOrigin.Z < bounds.Min.Z || newOrigin.Z > bounds.Max.Z {
		e.Velocity.Z = -e.Velocity.Z
		newOrigin.Z = oldOrigin.Z
	}
	if newOrigin == oldOrigin {
		return
	}

	wasLinked := e.Linked
	if wasLinked {
		if err := s.svc.UnlinkEntity(id); err != nil {
			s.log.Error("unlink before move failed", zap.Int32("entity", id), zap.Error(err))
			return
		}
	}
	if err := s.svc.Registry().SetOrigin(id, newOrigin); err != nil {
		s.log.Error("set origin failed", zap.Int32("entity", id), zap.Error(err))
		return
	}
	if wasLinked {
		if err := s.svc.LinkEntity(id); err != nil {
			s.log.Error("relink after move failed", zap.Int32("entity", id), zap.Error(err))
			return
		}
	}

	ok, err := s.svc.TestEntityPosition(id)
	if err != nil {
		s.log.Error("position test failed", zap.Int32("entity", id), zap.Error(err))
		return
	}
	if !ok && e.Solid.Blocks() {
		// Blocked: revert and reflect the velocity for next tick.
		if wasLinked {
			s.svc.UnlinkEntity(id)
		}
		s.svc.Registry().SetOrigin(id, oldOrigin)
		if wasLinked {
			s.svc.LinkEntity(id)
		}
		e.Velocity = e.Velocity.Scale(-1)
		return
	}

	s.moved = append(s.moved, id)
}
