package world

import (
	"errors"
	"fmt"

	"github.com/worldsim/server/internal/geom"
)

var (
	// ErrNotFound is returned for ids whose slot is free or out of range.
	ErrNotFound = errors.New("world: entity not found")
	// ErrCapacity is returned by Create when the slot ceiling is reached.
	ErrCapacity = errors.New("world: entity capacity reached")
)

// Unlinker removes an entity from the spatial grid. The registry calls it
// before freeing a slot so a destroyed entity never leaves stale grid cells.
type Unlinker interface {
	UnlinkEntity(id EntityID) error
}

// Registry is an arena of entity slots. Freed slots go onto a free list and
// their ids are reused by later creates. All access happens on the simulation
// goroutine.
type Registry struct {
	slots    []Entity
	freeList []EntityID
	capacity int // 0 = unlimited
	live     int
	unlinker Unlinker
}

// NewRegistry builds a registry with the given slot ceiling. capacity 0
// means unlimited.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		slots:    make([]Entity, 0, 256),
		freeList: make([]EntityID, 0, 64),
		capacity: capacity,
	}
}

// SetUnlinker wires the collision service in. Must be called before the
// first Destroy of a linked entity.
func (r *Registry) SetUnlinker(u Unlinker) {
	r.unlinker = u
}

// Create allocates a slot, reusing the most recently freed id if one exists.
// Returns InvalidID and ErrCapacity when the ceiling is reached.
func (r *Registry) Create(localMins, localMaxs geom.Vec3, kind SolidKind) (EntityID, error) {
	if r.capacity > 0 && r.live >= r.capacity {
		return InvalidID, ErrCapacity
	}

	var id EntityID
	if n := len(r.freeList); n > 0 {
		id = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		id = EntityID(len(r.slots))
		r.slots = append(r.slots, Entity{})
	}

	e := &r.slots[id]
	*e = Entity{
		ID:        id,
		LocalMins: localMins,
		LocalMaxs: localMaxs,
		Solid:     kind,
	}
	e.recomputeAbs()
	r.live++
	return id, nil
}

// Lookup returns the live entity for id, or nil if the slot is free or the
// id is out of range. Internal fast path; external callers use Get.
func (r *Registry) Lookup(id EntityID) *Entity {
	if id < 0 || int(id) >= len(r.slots) {
		return nil
	}
	e := &r.slots[id]
	if e.free {
		return nil
	}
	return e
}

// Get returns a read-only view of the entity.
func (r *Registry) Get(id EntityID) (EntityView, error) {
	e := r.Lookup(id)
	if e == nil {
		return EntityView{}, fmt.Errorf("get entity %d: %w", id, ErrNotFound)
	}
	return e.view(), nil
}

// SetOrigin moves the entity and recomputes its absolute box. The grid is
// not touched: callers follow the unlink, move, relink sequence themselves.
func (r *Registry) SetOrigin(id EntityID, origin geom.Vec3) error {
	e := r.Lookup(id)
	if e == nil {
		return fmt.Errorf("set origin of entity %d: %w", id, ErrNotFound)
	}
	e.Origin = origin
	e.recomputeAbs()
	e.Dirty = true
	return nil
}

// Destroy frees the slot and pushes the id onto the free list. A linked
// entity is unlinked first so the grid never references a freed id.
func (r *Registry) Destroy(id EntityID) error {
	e := r.Lookup(id)
	if e == nil {
		return fmt.Errorf("destroy entity %d: %w", id, ErrNotFound)
	}
	if e.Linked {
		if r.unlinker == nil {
			return fmt.Errorf("destroy entity %d: linked but no unlinker wired", id)
		}
		if err := r.unlinker.UnlinkEntity(id); err != nil {
			return fmt.Errorf("destroy entity %d: %w", id, err)
		}
	}
	*e = Entity{ID: id, free: true}
	r.freeList = append(r.freeList, id)
	r.live--
	return nil
}

// Len returns the number of live entities.
func (r *Registry) Len() int {
	return r.live
}

// Each calls fn for every live entity.
func (r *Registry) Each(fn func(*Entity)) {
	for i := range r.slots {
		if !r.slots[i].free {
			fn(&r.slots[i])
		}
	}
}
