package geometry

import "github.com/df07/go-progressive-linetracer/pkg/core"

// DefaultHitEpsilon is the minimum hit distance, keeping a bounced ray from
// re-hitting the segment it starts on
const DefaultHitEpsilon = 1e-4

// Hit describes the nearest segment struck by a ray
type Hit struct {
	Point    core.Vec2   // Point of intersection
	Distance float64     // Distance from the ray origin
	Index    int         // Index of the struck segment
	Segment  LineSegment // Copy of the struck segment
}

// Intersect returns the nearest segment hit at a distance greater than epsilon.
// On exact distance ties the segment evaluated first wins.
func Intersect(ray Ray, segments []LineSegment, epsilon float64) (Hit, bool) {
	dirLength := ray.Direction.Length()
	if dirLength == 0 {
		return Hit{}, false
	}

	best := Hit{Index: -1}
	closestSoFar := 0.0

	for i := range segments {
		seg := &segments[i]

		// Endpoints relative to the ray origin
		a := seg.Start.Subtract(ray.Origin)
		b := seg.End.Subtract(ray.Origin)
		edge := b.Subtract(a)

		d := ray.Direction.Cross(edge)
		if d == 0 {
			continue // parallel or degenerate
		}

		// origin + t*dir = start + lambda*edge
		lambda := a.Cross(ray.Direction) / d
		if lambda < 0 || lambda > 1 {
			continue
		}

		point := seg.Start.Add(seg.Edge().Multiply(lambda))
		distance := point.Subtract(ray.Origin).Dot(ray.Direction) / dirLength
		if distance <= 0 || distance <= epsilon {
			continue
		}

		if best.Index < 0 || distance < closestSoFar {
			closestSoFar = distance
			best = Hit{
				Point:    point,
				Distance: distance,
				Index:    i,
				Segment:  *seg,
			}
		}
	}

	return best, best.Index >= 0
}
