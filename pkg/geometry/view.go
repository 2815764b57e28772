package geometry

import (
	"math"

	"github.com/df07/go-progressive-linetracer/pkg/core"
)

// Watcher is the observer whose position is the origin of every primary ray
type Watcher struct {
	Position core.Vec2 // World position, origin of primary rays
	Offset   core.Vec2 // Pan offset, the world point shown at the screen centre
}

// ImageSize is the target image size in pixels
type ImageSize struct {
	Width, Height int
}

// AspectRatio returns width / height
func (s ImageSize) AspectRatio() float64 {
	return float64(s.Width) / float64(s.Height)
}

// Pixels returns the total number of pixels
func (s ImageSize) Pixels() int {
	return s.Width * s.Height
}

// Valid reports whether both dimensions are positive
func (s ImageSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// View is the immutable per-dispatch projection state
type View struct {
	Watcher Watcher
	Size    ImageSize
	Scale   float64 // World-to-NDC scale; 1 shows world y in [-1, 1]
}

// Project maps a world point to normalised device coordinates.
// The visible range is [-1, 1] on both axes with +Y up.
func (v View) Project(p core.Vec2) core.Vec2 {
	rel := p.Subtract(v.Watcher.Offset).Multiply(v.Scale)
	return core.Vec2{X: rel.X / v.Size.AspectRatio(), Y: rel.Y}
}

// ToScreen maps a world point to continuous pixel coordinates (+Y down)
func (v View) ToScreen(p core.Vec2) core.Vec2 {
	ndc := v.Project(p)
	return core.Vec2{
		X: (ndc.X + 1) * 0.5 * float64(v.Size.Width),
		Y: (1 - ndc.Y) * 0.5 * float64(v.Size.Height),
	}
}

// ToPixel maps a world point to the pixel that contains it.
// Points outside the visible range are rejected, never clamped.
func (v View) ToPixel(p core.Vec2) (x, y int, ok bool) {
	s := v.ToScreen(p)
	if math.IsNaN(s.X) || math.IsNaN(s.Y) {
		return 0, 0, false
	}
	fx := math.Floor(s.X)
	fy := math.Floor(s.Y)
	if fx < 0 || fy < 0 || fx >= float64(v.Size.Width) || fy >= float64(v.Size.Height) {
		return 0, 0, false
	}
	return int(fx), int(fy), true
}

// ToWorld maps continuous pixel coordinates back to a world point
func (v View) ToWorld(screen core.Vec2) core.Vec2 {
	ndc := core.Vec2{
		X: screen.X/float64(v.Size.Width)*2 - 1,
		Y: 1 - screen.Y/float64(v.Size.Height)*2,
	}
	rel := core.Vec2{X: ndc.X * v.Size.AspectRatio(), Y: ndc.Y}
	return rel.Multiply(1 / v.Scale).Add(v.Watcher.Offset)
}
