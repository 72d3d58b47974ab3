package geom

// Box is an axis-aligned bounding box. Min <= Max componentwise is a caller
// invariant: operations assume it and do not correct inverted boxes.
type Box struct {
	Min Vec3
	Max Vec3
}

// BoxAt builds a world-space box from an origin and an entity-local extent.
func BoxAt(origin, localMins, localMaxs Vec3) Box {
	return Box{Min: origin.Add(localMins), Max: origin.Add(localMaxs)}
}

// Overlaps reports whether b and o intersect on all three axes.
// Touching faces (equal coordinates) count as overlapping.
func (b Box) Overlaps(o Box) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

// ContainsPoint reports whether p lies inside b, boundary inclusive.
func (b Box) ContainsPoint(p Vec3) bool {
	return b.Min.X <= p.X && p.X <= b.Max.X &&
		b.Min.Y <= p.Y && p.Y <= b.Max.Y &&
		b.Min.Z <= p.Z && p.Z <= b.Max.Z
}

// Union returns the smallest box covering both b and o.
func (b Box) Union(o Box) Box {
	return Box{Min: MinComp(b.Min, o.Min), Max: MaxComp(b.Max, o.Max)}
}

// Translate returns b shifted by v.
func (b Box) Translate(v Vec3) Box {
	return Box{Min: b.Min.Add(v), Max: b.Max.Add(v)}
}

// Valid reports Min <= Max on every axis. Diagnostic use only: an inverted
// box is a contract violation, not a condition the box operations handle.
func (b Box) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}
