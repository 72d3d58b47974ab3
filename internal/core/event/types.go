package event

import (
	"github.com/worldsim/server/internal/geom"
	"github.com/worldsim/server/internal/world"
)

// EntitySpawned fires after an entity is created and linked.
type EntitySpawned struct {
	EntityID  world.EntityID
	Archetype string
	Origin    geom.Vec3
}

// EntityTouched fires for each trigger/mover contact reported by the
// collision service, at most once per pair per tick.
type EntityTouched struct {
	Trigger world.EntityView
	Mover   world.EntityView
}

// EntityDestroyed fires after the destroy queue frees an entity.
type EntityDestroyed struct {
	EntityID  world.EntityID
	Archetype string
}
