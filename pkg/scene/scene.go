package scene

import (
	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
)

// DefaultSize is the output size used when a scene does not set one
var DefaultSize = geometry.ImageSize{Width: 640, Height: 360}

// Scene contains all the elements needed for rendering
type Scene struct {
	Name     string
	Segments []geometry.LineSegment // Flattened body outlines, read-only during a frame
	Watcher  geometry.Watcher
	Size     geometry.ImageSize      // Recommended output size
	Dispatch renderer.DispatchConfig // Recommended sampling configuration
}

// NewScene creates an empty scene with default size and sampling
func NewScene(name string) *Scene {
	return &Scene{
		Name:     name,
		Size:     DefaultSize,
		Dispatch: renderer.DefaultDispatchConfig(),
	}
}

// GetSegments implements renderer.Scene
func (s *Scene) GetSegments() []geometry.LineSegment {
	return s.Segments
}

// GetWatcher implements renderer.Scene
func (s *Scene) GetWatcher() geometry.Watcher {
	return s.Watcher
}

// AddBody flattens a body outline into segments
func (s *Scene) AddBody(b Body) {
	s.Segments = append(s.Segments, b.Segments()...)
}

// AddSegments appends raw segments
func (s *Scene) AddSegments(segments ...geometry.LineSegment) {
	s.Segments = append(s.Segments, segments...)
}

// MoveWatcher pans the view by delta in world units
func (s *Scene) MoveWatcher(delta core.Vec2) {
	s.Watcher.Offset = s.Watcher.Offset.Add(delta)
}

// SetWatcherPosition moves the ray origin
func (s *Scene) SetWatcherPosition(p core.Vec2) {
	s.Watcher.Position = p
}

// LightCount returns the number of emissive segments
func (s *Scene) LightCount() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.IsLight() {
			n++
		}
	}
	return n
}
