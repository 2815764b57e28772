package scene

import (
	"math"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// Shape is a point strip in body-local coordinates.
// Consecutive points form segments; repeat the first point to close it.
type Shape struct {
	Points []core.Vec2
}

// Quad returns a closed w x h rectangle centred on the origin
func Quad(w, h float64) Shape {
	hw, hh := w*0.5, h*0.5
	return Shape{Points: []core.Vec2{
		{X: -hw, Y: hh},
		{X: -hw, Y: -hh},
		{X: hw, Y: -hh},
		{X: hw, Y: hh},
		{X: -hw, Y: hh},
	}}
}

// Circle returns a closed unit circle approximated by sides segments
func Circle(sides int) Shape {
	if sides < 3 {
		sides = 3
	}
	points := make([]core.Vec2, sides+1)
	for i := 0; i < sides; i++ {
		points[i] = core.Vec2FromAngle(2 * math.Pi * float64(i) / float64(sides))
	}
	points[sides] = points[0]
	return Shape{Points: points}
}

// Strip returns an open polyline through the given points
func Strip(points ...core.Vec2) Shape {
	return Shape{Points: append([]core.Vec2(nil), points...)}
}

// Body is a placed shape with a look
type Body struct {
	Shape     Shape
	Position  core.Vec2
	Rotation  float64 // Radians, counter-clockwise
	Scale     float64 // Uniform scale, 0 means 1
	Color     core.Vec3
	Light     float64
	Roughness float64
	Seed      float64 // Segment i gets Seed + i
}

// Transform maps a body-local point to world space
func (b Body) Transform(p core.Vec2) core.Vec2 {
	scale := b.Scale
	if scale == 0 {
		scale = 1
	}
	return p.Multiply(scale).Rotate(b.Rotation).Add(b.Position)
}

// Outline returns the shape points in world space
func (b Body) Outline() []core.Vec2 {
	points := make([]core.Vec2, len(b.Shape.Points))
	for i, p := range b.Shape.Points {
		points[i] = b.Transform(p)
	}
	return points
}

// Segments returns one segment per consecutive point pair
func (b Body) Segments() []geometry.LineSegment {
	outline := b.Outline()
	if len(outline) < 2 {
		return nil
	}
	segments := make([]geometry.LineSegment, 0, len(outline)-1)
	for i := 0; i < len(outline)-1; i++ {
		seg := geometry.NewLightSegment(outline[i], outline[i+1], b.Color, b.Light)
		segments = append(segments, seg.WithRoughness(b.Roughness).WithSeed(b.Seed+float64(i)))
	}
	return segments
}
