package world

import "github.com/worldsim/server/internal/geom"

// EntityID indexes an entity slot in the registry. IDs of destroyed entities
// are reused, so holders must tolerate lookups failing with ErrNotFound.
type EntityID = int32

// InvalidID is returned by Create on failure.
const InvalidID EntityID = -1

// SolidKind classifies how an entity participates in collision.
type SolidKind uint8

const (
	SolidNone     SolidKind = iota // never linked into the grid
	SolidTrigger                   // overlappable, fires touch events
	SolidBBox                      // blocks movement, box-shaped
	SolidSlideBox                  // blocks movement, movers slide along it
	SolidBSP                       // blocks movement, brush geometry
)

// Blocks reports whether the kind obstructs movement.
func (k SolidKind) Blocks() bool {
	return k == SolidBBox || k == SolidSlideBox || k == SolidBSP
}

func (k SolidKind) String() string {
	switch k {
	case SolidNone:
		return "none"
	case SolidTrigger:
		return "trigger"
	case SolidBBox:
		return "bbox"
	case SolidSlideBox:
		return "slidebox"
	case SolidBSP:
		return "bsp"
	}
	return "unknown"
}

// KindMask selects solid kinds in area queries.
type KindMask uint8

const (
	MaskTrigger KindMask = 1 << iota
	MaskBBox
	MaskSlideBox
	MaskBSP

	MaskBlocking = MaskBBox | MaskSlideBox | MaskBSP
	MaskAll      = MaskTrigger | MaskBlocking
)

// Has reports whether the mask selects kind k. SolidNone entities are never
// linked, so no mask bit exists for them.
func (m KindMask) Has(k SolidKind) bool {
	switch k {
	case SolidTrigger:
		return m&MaskTrigger != 0
	case SolidBBox:
		return m&MaskBBox != 0
	case SolidSlideBox:
		return m&MaskSlideBox != 0
	case SolidBSP:
		return m&MaskBSP != 0
	}
	return false
}

// Entity is one registry slot. The local box is fixed at creation; the
// absolute box is derived from it whenever the origin changes.
type Entity struct {
	ID        EntityID
	Archetype string

	LocalMins geom.Vec3
	LocalMaxs geom.Vec3
	Origin    geom.Vec3
	Abs       geom.Box

	Solid  SolidKind
	Linked bool
	// LinkedBox is the absolute box at the moment of the last link. Grid
	// removal must use this box, not the current one, or cells leak.
	LinkedBox geom.Box

	Velocity geom.Vec3
	Dirty    bool // needs persisting

	free bool
}

func (e *Entity) recomputeAbs() {
	e.Abs = geom.BoxAt(e.Origin, e.LocalMins, e.LocalMaxs)
}

func (e *Entity) view() EntityView {
	return EntityView{
		ID:        e.ID,
		Archetype: e.Archetype,
		Origin:    e.Origin,
		Mins:      e.LocalMins,
		Maxs:      e.LocalMaxs,
		Solid:     e.Solid,
		Linked:    e.Linked,
	}
}

// EntityView is a read-only copy of an entity's public state, safe to hand to
// callbacks and scripts.
type EntityView struct {
	ID        EntityID
	Archetype string
	Origin    geom.Vec3
	Mins      geom.Vec3
	Maxs      geom.Vec3
	Solid     SolidKind
	Linked    bool
}
