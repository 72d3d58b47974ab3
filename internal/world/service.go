package world

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/worldsim/server/internal/geom"
)

// TouchFunc receives one trigger/mover contact. At most one call per ordered
// pair per tick window.
type TouchFunc func(trigger, mover EntityView)

type pairKey struct {
	trigger EntityID
	mover   EntityID
}

// Service is the collision facade over the registry and the grid. It owns
// link state, area and position queries, and the per-tick touch window.
// Single simulation goroutine, no locks.
type Service struct {
	log  *zap.Logger
	reg  *Registry
	grid *Grid

	// worldBounds is nominal: entities may link outside it, the grid is
	// unbounded. Kept for diagnostics and for hosts that clamp movement.
	worldBounds geom.Box

	touch   TouchFunc
	touched map[pairKey]struct{}

	queryBuf     []EntityID
	destroyQueue []EntityID
}

// NewService wires a service over reg and registers itself as the registry's
// unlinker so Destroy cannot leave stale grid cells.
func NewService(reg *Registry, cellSize float64, warnCells int, log *zap.Logger) *Service {
	s := &Service{
		log:     log,
		reg:     reg,
		grid:    NewGrid(cellSize, warnCells, reg, log),
		touched: make(map[pairKey]struct{}, 64),
	}
	reg.SetUnlinker(s)
	return s
}

func (s *Service) Registry() *Registry {
	return s.reg
}

// ClearWorld resets the grid and records the nominal world bounds. Entities
// survive but are all left unlinked.
func (s *Service) ClearWorld(worldMins, worldMaxs geom.Vec3) {
	s.grid.Clear()
	s.worldBounds = geom.Box{Min: worldMins, Max: worldMaxs}
	clear(s.touched)
	s.reg.Each(func(e *Entity) {
		e.Linked = false
	})
	s.log.Info("world cleared",
		zap.Float64("cell_size", s.grid.CellSize()),
		zap.Int("entities", s.reg.Len()))
}

// WorldBounds returns the bounds recorded by the last ClearWorld.
func (s *Service) WorldBounds() geom.Box {
	return s.worldBounds
}

// LinkEntity inserts the entity's absolute box into the grid. Solid NONE is
// a silent no-op. Linking an already linked entity unlinks it first, so a
// relink after movement is always safe.
func (s *Service) LinkEntity(id EntityID) error {
	e := s.reg.Lookup(id)
	if e == nil {
		return fmt.Errorf("link entity %d: %w", id, ErrNotFound)
	}
	if e.Solid == SolidNone {
		return nil
	}
	if e.Linked {
		s.grid.Remove(id, e.LinkedBox)
	}
	e.LinkedBox = e.Abs
	s.grid.Insert(id, e.LinkedBox)
	e.Linked = true
	return nil
}

// UnlinkEntity removes the entity from the grid using the box recorded at
// link time. Unlinking an unlinked entity is a no-op.
func (s *Service) UnlinkEntity(id EntityID) error {
	e := s.reg.Lookup(id)
	if e == nil {
		return fmt.Errorf("unlink entity %d: %w", id, ErrNotFound)
	}
	if !e.Linked {
		return nil
	}
	s.grid.Remove(id, e.LinkedBox)
	e.Linked = false
	return nil
}

// AreaEntities returns the linked entities whose boxes overlap the query
// region and whose solid kind is selected by mask. The result is a fresh
// slice in unspecified order.
func (s *Service) AreaEntities(queryMins, queryMaxs geom.Vec3, mask KindMask) []EntityID {
	query := geom.Box{Min: queryMins, Max: queryMaxs}
	s.queryBuf = s.grid.QueryRegionInto(query, s.queryBuf[:0])

	out := make([]EntityID, 0, len(s.queryBuf))
	for _, id := range s.queryBuf {
		e := s.reg.Lookup(id)
		if e == nil {
			continue
		}
		if mask.Has(e.Solid) {
			out = append(out, id)
		}
	}
	return out
}

// TestEntityPosition reports whether the entity's current absolute box is
// free of blocking overlap. The entity itself is excluded, so testing a
// linked entity at its own position does not self-collide.
func (s *Service) TestEntityPosition(id EntityID) (bool, error) {
	e := s.reg.Lookup(id)
	if e == nil {
		return false, fmt.Errorf("test position of entity %d: %w", id, ErrNotFound)
	}
	s.queryBuf = s.grid.QueryRegionInto(e.Abs, s.queryBuf[:0])
	for _, oid := range s.queryBuf {
		if oid == id {
			continue
		}
		o := s.reg.Lookup(oid)
		if o == nil {
			continue
		}
		if o.Solid.Blocks() {
			return false, nil
		}
	}
	return true, nil
}

// SetTouchHandler installs the contact callback.
func (s *Service) SetTouchHandler(fn TouchFunc) {
	s.touch = fn
}

// BeginTick opens a new touch window. Pairs already reported in the previous
// window become reportable again.
func (s *Service) BeginTick() {
	clear(s.touched)
}

// TouchLinks fires the touch callback for every trigger/blocking contact the
// entity currently participates in. A trigger mover touches the blocking
// entities it overlaps; a blocking mover touches the triggers. Each ordered
// (trigger, mover) pair fires at most once per tick window.
func (s *Service) TouchLinks(id EntityID) error {
	e := s.reg.Lookup(id)
	if e == nil {
		return fmt.Errorf("touch links of entity %d: %w", id, ErrNotFound)
	}
	if s.touch == nil || !e.Linked {
		return nil
	}

	var wantMask KindMask
	switch {
	case e.Solid == SolidTrigger:
		wantMask = MaskBlocking
	case e.Solid.Blocks():
		wantMask = MaskTrigger
	default:
		return nil
	}

	// Collect candidates before firing: the callback may re-enter the
	// service and reuse queryBuf.
	s.queryBuf = s.grid.QueryRegionInto(e.Abs, s.queryBuf[:0])
	candidates := make([]EntityID, 0, len(s.queryBuf))
	for _, oid := range s.queryBuf {
		if oid == id {
			continue
		}
		o := s.reg.Lookup(oid)
		if o == nil || !wantMask.Has(o.Solid) {
			continue
		}
		candidates = append(candidates, oid)
	}

	for _, oid := range candidates {
		o := s.reg.Lookup(oid)
		if o == nil {
			continue
		}
		if e.Solid == SolidTrigger {
			s.fireTouch(e, o)
		} else {
			s.fireTouch(o, e)
		}
	}
	return nil
}

func (s *Service) fireTouch(trigger, mover *Entity) {
	key := pairKey{trigger: trigger.ID, mover: mover.ID}
	if _, done := s.touched[key]; done {
		return
	}
	s.touched[key] = struct{}{}
	s.touch(trigger.view(), mover.view())
}

// MarkForDestroy queues the entity for destruction at tick end. Queueing the
// same id twice is harmless; the second flush attempt gets ErrNotFound and
// is skipped.
func (s *Service) MarkForDestroy(id EntityID) {
	s.destroyQueue = append(s.destroyQueue, id)
}

// PendingDestroys returns the ids queued for destruction, valid until the
// next flush.
func (s *Service) PendingDestroys() []EntityID {
	return s.destroyQueue
}

// FlushDestroyQueue destroys every queued entity and returns how many were
// actually destroyed.
func (s *Service) FlushDestroyQueue() int {
	destroyed := 0
	for _, id := range s.destroyQueue {
		if err := s.reg.Destroy(id); err == nil {
			destroyed++
		}
	}
	s.destroyQueue = s.destroyQueue[:0]
	return destroyed
}

// Stats returns the grid occupancy snapshot.
func (s *Service) Stats() GridStats {
	return s.grid.Stats()
}
