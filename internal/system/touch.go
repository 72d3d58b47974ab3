package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/worldsim/server/internal/core/event"
	coresys "github.com/worldsim/server/internal/core/system"
	"github.com/worldsim/server/internal/geom"
	"github.com/worldsim/server/internal/scripting"
	"github.com/worldsim/server/internal/world"
)

// TouchSystem resolves trigger contacts for everything that moved this tick.
// Phase 1 (PostUpdate). Each contact is handed to the Lua touch hook and its
// commands are applied; an EntityTouched event is emitted for observers.
type TouchSystem struct {
	svc      *world.Service
	movement *MovementSystem
	lua      *scripting.Engine
	bus      *event.Bus
	log      *zap.Logger

	tick int64
}

func NewTouchSystem(svc *world.Service, movement *MovementSystem, lua *scripting.Engine, bus *event.Bus, log *zap.Logger) *TouchSystem {
	s := &TouchSystem{
		svc:      svc,
		movement: movement,
		lua:      lua,
		bus:      bus,
		log:      log,
	}
	svc.SetTouchHandler(s.onTouch)
	return s
}

func (s *TouchSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *TouchSystem) Update(_ time.Duration) {
	s.tick++
	s.svc.BeginTick()
	for _, id := range s.movement.Moved() {
		if err := s.svc.TouchLinks(id); err != nil {
			s.log.Error("touch links failed", zap.Int32("entity", id), zap.Error(err))
		}
	}
}

func (s *TouchSystem) onTouch(trigger, mover world.EntityView) {
	event.Emit(s.bus, event.EntityTouched{Trigger: trigger, Mover: mover})

	if s.lua == nil {
		return
	}
	cmds := s.lua.RunTouch(scripting.TouchContext{
		TriggerID:        int(trigger.ID),
		TriggerArchetype: trigger.Archetype,
		MoverID:          int(mover.ID),
		MoverArchetype:   mover.Archetype,
		MoverX:           mover.Origin.X,
		MoverY:           mover.Origin.Y,
		MoverZ:           mover.Origin.Z,
		Tick:             s.tick,
	})
	for _, cmd := range cmds {
		s.apply(cmd, trigger, mover)
	}
}

func (s *TouchSystem) apply(cmd scripting.TouchCommand, trigger, mover world.EntityView) {
	switch cmd.Type {
	case "remove_mover":
		s.svc.MarkForDestroy(mover.ID)
	case "remove_trigger":
		s.svc.MarkForDestroy(trigger.ID)
	case "teleport_mover":
		dest := geom.Vec3{X: cmd.X, Y: cmd.Y, Z: cmd.Z}
		if err := s.teleport(mover.ID, dest); err != nil {
			s.log.Error("teleport failed", zap.Int32("entity", mover.ID), zap.Error(err))
		}
	case "log":
		s.log.Info("trigger script", zap.String("message", cmd.Message),
			zap.Int32("trigger", trigger.ID), zap.Int32("mover", mover.ID))
	default:
		s.log.Warn("unknown trigger command", zap.String("type", cmd.Type))
	}
}

func (s *TouchSystem) teleport(id world.EntityID, dest geom.Vec3) error {
	e := s.svc.Registry().Lookup(id)
	if e == nil {
		return world.ErrNotFound
	}
	wasLinked := e.Linked
	if wasLinked {
		if err := s.svc.UnlinkEntity(id); err != nil {
			return err
		}
	}
	if err := s.svc.Registry().SetOrigin(id, dest); err != nil {
		return err
	}
	if wasLinked {
		return s.svc.LinkEntity(id)
	}
	return nil
}
