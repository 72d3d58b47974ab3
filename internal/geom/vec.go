package geom

// Vec3 is a point or extent in world space.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// MinComp returns the componentwise minimum of v and o.
func MinComp(v, o Vec3) Vec3 {
	return Vec3{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

// MaxComp returns the componentwise maximum of v and o.
func MaxComp(v, o Vec3) Vec3 {
	return Vec3{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}
