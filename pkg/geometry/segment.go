package geometry

import "github.com/df07/go-progressive-linetracer/pkg/core"

// LineSegment is a light-emitting or reflective segment of the scene
type LineSegment struct {
	Start     core.Vec2 // Start point
	End       core.Vec2 // End point
	Light     float64   // Emission intensity, > 0 marks a light source
	Color     core.Vec3 // RGB in unit range
	Roughness float64   // Reflection spread, 0 = perfect mirror
	Seed      float64   // Per-segment hash input
}

// NewLineSegment creates a non-emissive mirror segment
func NewLineSegment(start, end core.Vec2, color core.Vec3) LineSegment {
	return LineSegment{Start: start, End: end, Color: color}
}

// NewLightSegment creates an emissive segment
func NewLightSegment(start, end core.Vec2, color core.Vec3, light float64) LineSegment {
	return LineSegment{Start: start, End: end, Color: color, Light: light}
}

// IsLight reports whether the segment emits light
func (s LineSegment) IsLight() bool {
	return s.Light > 0
}

// Edge returns the vector from Start to End
func (s LineSegment) Edge() core.Vec2 {
	return s.End.Subtract(s.Start)
}

// Tangent returns the unit tangent, or the zero vector for a degenerate segment
func (s LineSegment) Tangent() core.Vec2 {
	return s.Edge().Normalize()
}

// Length returns the segment length
func (s LineSegment) Length() float64 {
	return s.Edge().Length()
}

// Emission returns the colour a path receives when it terminates on this segment
func (s LineSegment) Emission() core.Vec3 {
	return s.Color.Multiply(s.Light)
}

// WithRoughness returns a copy of the segment with the given roughness
func (s LineSegment) WithRoughness(roughness float64) LineSegment {
	s.Roughness = roughness
	return s
}

// WithSeed returns a copy of the segment with the given hash seed
func (s LineSegment) WithSeed(seed float64) LineSegment {
	s.Seed = seed
	return s
}
