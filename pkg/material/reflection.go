package material

import (
	"math"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// Hash is the deterministic sine hash fract(sin(x) * 100000).
// It is not statistically strong; it is kept for reproducible output.
func Hash(x float64) float64 {
	v := math.Sin(x) * 100000
	return v - math.Floor(v)
}

// Reflect returns the mirror image of v about the unit tangent t
func Reflect(v, t core.Vec2) core.Vec2 {
	// r = 2*dot(v,t)*t - v
	return t.Multiply(2 * v.Dot(t)).Subtract(v)
}

// Scatter reflects an incoming direction off a segment, perturbing the mirror
// direction by the segment roughness. It returns false (absorbed) when the
// perturbed direction crosses to the other side of the segment tangent.
func Scatter(seg geometry.LineSegment, incoming core.Vec2, seed float64) (core.Vec2, bool) {
	tangent := seg.Tangent()
	reflected := Reflect(incoming.Normalize(), tangent)

	offset := math.Pi * (Hash(seed) - 0.5) * seg.Roughness
	if offset == 0 {
		return reflected, true
	}

	tangentAngle := tangent.Angle()
	reflectionAngle := reflected.Angle() - tangentAngle
	perturbedAngle := reflectionAngle + offset

	if sign(math.Sin(reflectionAngle)) != sign(math.Sin(perturbedAngle)) {
		return core.Vec2{}, false
	}

	return core.Vec2FromAngle(tangentAngle + perturbedAngle), true
}

// sign returns -1, 0 or 1
func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
