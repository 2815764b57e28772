package scene

import (
	"fmt"
	"math"
	"sort"

	"github.com/df07/go-progressive-linetracer/pkg/core"
)

var builtins = map[string]struct {
	description string
	create      func() *Scene
}{
	"room":  {"Walled room lit by a ceiling strip, with a mirror and a rough block", NewRoomScene},
	"ring":  {"Watcher inside a ring of light surrounded by coloured mirrors", NewRingScene},
	"prism": {"Light bar shining on a rough triangular prism over a mirror floor", NewPrismScene},
}

// BuiltinNames returns the built-in scene names in sorted order
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBuiltinScene creates a built-in scene by name
func NewBuiltinScene(name string) (*Scene, error) {
	b, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown scene %q", name)
	}
	return b.create(), nil
}

// NewRoomScene creates a closed room with a ceiling light
func NewRoomScene() *Scene {
	s := NewScene("room")
	s.Watcher.Position = core.NewVec2(0, -0.2)

	// Walls
	s.AddBody(Body{
		Shape:     Quad(3.2, 1.8),
		Color:     core.NewVec3(0.8, 0.8, 0.8),
		Roughness: 0.6,
		Seed:      1,
	})

	// Ceiling light
	s.AddBody(Body{
		Shape:    Strip(core.NewVec2(-0.4, 0), core.NewVec2(0.4, 0)),
		Position: core.NewVec2(0, 0.85),
		Color:    core.NewVec3(1, 0.9, 0.7),
		Light:    4,
	})

	// Smooth mirror slab
	s.AddBody(Body{
		Shape:    Quad(0.6, 0.05),
		Position: core.NewVec2(0.7, -0.3),
		Rotation: math.Pi / 6,
		Color:    core.NewVec3(0.95, 0.95, 0.95),
		Seed:     20,
	})

	// Rough red block
	s.AddBody(Body{
		Shape:     Quad(0.3, 0.3),
		Position:  core.NewVec2(-0.7, -0.6),
		Rotation:  0.2,
		Color:     core.NewVec3(0.9, 0.3, 0.25),
		Roughness: 0.8,
		Seed:      40,
	})

	return s
}

// NewRingScene creates a ring light around the watcher with mirrors in between
func NewRingScene() *Scene {
	s := NewScene("ring")
	s.Size.Width, s.Size.Height = 480, 480
	s.Dispatch.ViewScale = 0.6

	s.AddBody(Body{
		Shape: Circle(64),
		Scale: 1.5,
		Color: core.White,
		Light: 1.5,
	})

	colors := []core.Vec3{
		core.NewVec3(1, 0.3, 0.3),
		core.NewVec3(0.3, 1, 0.3),
		core.NewVec3(0.3, 0.3, 1),
		core.NewVec3(1, 1, 0.3),
		core.NewVec3(0.3, 1, 1),
		core.NewVec3(1, 0.3, 1),
	}
	for i, c := range colors {
		angle := 2 * math.Pi * float64(i) / float64(len(colors))
		s.AddBody(Body{
			Shape:     Strip(core.NewVec2(0, -0.2), core.NewVec2(0, 0.2)),
			Position:  core.Vec2FromAngle(angle).Multiply(0.8),
			Rotation:  angle + 0.3,
			Color:     c,
			Roughness: 0.1 * float64(i),
			Seed:      float64(100 + 10*i),
		})
	}

	return s
}

// NewPrismScene creates a rough prism lit from the side above a mirror floor
func NewPrismScene() *Scene {
	s := NewScene("prism")
	s.Watcher.Position = core.NewVec2(-1.2, -0.5)

	// Light bar on the left
	s.AddBody(Body{
		Shape:    Strip(core.NewVec2(0, -0.3), core.NewVec2(0, 0.3)),
		Position: core.NewVec2(-1.5, 0.4),
		Color:    core.White,
		Light:    3,
	})

	// Triangular prism
	h := math.Sqrt(3) / 2
	s.AddBody(Body{
		Shape: Strip(
			core.NewVec2(-0.5, -h/3),
			core.NewVec2(0.5, -h/3),
			core.NewVec2(0, 2*h/3),
			core.NewVec2(-0.5, -h/3),
		),
		Scale:     0.8,
		Position:  core.NewVec2(0.3, 0),
		Rotation:  0.15,
		Color:     core.NewVec3(0.4, 0.9, 0.9),
		Roughness: 0.25,
		Seed:      7,
	})

	// Mirror floor
	s.AddBody(Body{
		Shape:    Strip(core.NewVec2(-1.8, 0), core.NewVec2(1.8, 0)),
		Position: core.NewVec2(0, -0.8),
		Color:    core.NewVec3(0.9, 0.9, 0.9),
		Seed:     3,
	})

	return s
}
