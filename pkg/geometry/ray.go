package geometry

import "github.com/df07/go-progressive-linetracer/pkg/core"

// Ray is a 2D ray carrying the colour tint accumulated along its path
type Ray struct {
	Origin     core.Vec2
	Direction  core.Vec2
	Throughput core.Vec3
}

// NewRay creates a ray with white throughput
func NewRay(origin, direction core.Vec2) Ray {
	return Ray{Origin: origin, Direction: direction, Throughput: core.White}
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) core.Vec2 {
	return r.Origin.Add(r.Direction.Multiply(t))
}
