package scene

import (
	"math"
	"testing"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
)

func approxVec2(a, b core.Vec2) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestQuad_IsClosed(t *testing.T) {
	q := Quad(2, 1)
	if len(q.Points) != 5 {
		t.Fatalf("Expected 5 points, got %d", len(q.Points))
	}
	if q.Points[0] != q.Points[4] {
		t.Errorf("Quad outline should end where it starts")
	}
	for _, p := range q.Points {
		if math.Abs(p.X) != 1 || math.Abs(p.Y) != 0.5 {
			t.Errorf("Unexpected corner %v", p)
		}
	}
}

func TestCircle(t *testing.T) {
	c := Circle(12)
	if len(c.Points) != 13 {
		t.Fatalf("Expected 13 points, got %d", len(c.Points))
	}
	for i, p := range c.Points {
		if math.Abs(p.Length()-1) > 1e-12 {
			t.Errorf("Point %d off the unit circle: %v", i, p)
		}
	}
	if len(Circle(1).Points) != 4 {
		t.Error("Circle should use at least 3 sides")
	}
}

func TestBody_SegmentsCarryLookAndSeed(t *testing.T) {
	b := Body{
		Shape:     Strip(core.NewVec2(0, 0), core.NewVec2(1, 0), core.NewVec2(1, 1)),
		Color:     core.NewVec3(0.2, 0.4, 0.6),
		Light:     2,
		Roughness: 0.3,
		Seed:      10,
	}

	segments := b.Segments()
	if len(segments) != 2 {
		t.Fatalf("Expected 2 segments, got %d", len(segments))
	}
	for i, seg := range segments {
		if seg.Seed != 10+float64(i) {
			t.Errorf("Segment %d: expected seed %v, got %v", i, 10+float64(i), seg.Seed)
		}
		if seg.Light != 2 || seg.Roughness != 0.3 || seg.Color != b.Color {
			t.Errorf("Segment %d lost the body look: %+v", i, seg)
		}
	}
	if segments[0].End != segments[1].Start {
		t.Error("Consecutive segments should share endpoints")
	}

	if got := (Body{Shape: Strip(core.NewVec2(1, 1))}).Segments(); got != nil {
		t.Errorf("Single point should produce no segments, got %v", got)
	}
}

func TestBody_Transform(t *testing.T) {
	b := Body{
		Position: core.NewVec2(1, 2),
		Rotation: math.Pi / 2,
		Scale:    2,
	}
	got := b.Transform(core.NewVec2(1, 0))
	if !approxVec2(got, core.NewVec2(1, 4)) {
		t.Errorf("Expected (1,4), got %v", got)
	}

	// Zero scale means identity scale
	b.Scale = 0
	if got := b.Transform(core.NewVec2(1, 0)); !approxVec2(got, core.NewVec2(1, 3)) {
		t.Errorf("Expected (1,3), got %v", got)
	}
}

func TestScene_MoveWatcher(t *testing.T) {
	s := NewScene("test")
	s.SetWatcherPosition(core.NewVec2(0.5, 0.5))
	s.MoveWatcher(core.NewVec2(0.1, -0.2))
	s.MoveWatcher(core.NewVec2(0.1, 0))

	w := s.GetWatcher()
	if !approxVec2(w.Offset, core.NewVec2(0.2, -0.2)) {
		t.Errorf("Expected offset (0.2,-0.2), got %v", w.Offset)
	}
	if w.Position != core.NewVec2(0.5, 0.5) {
		t.Errorf("Panning should not move the ray origin, got %v", w.Position)
	}
}

func TestBuiltinScenes(t *testing.T) {
	names := BuiltinNames()
	if len(names) != 3 {
		t.Fatalf("Expected 3 built-in scenes, got %v", names)
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			s, err := NewBuiltinScene(name)
			if err != nil {
				t.Fatalf("NewBuiltinScene(%q) error: %v", name, err)
			}
			if s.Name != name {
				t.Errorf("Expected name %q, got %q", name, s.Name)
			}
			if s.LightCount() == 0 {
				t.Error("Scene has no light")
			}
			if err := s.Dispatch.Validate(); err != nil {
				t.Errorf("Invalid dispatch config: %v", err)
			}
			if !s.Size.Valid() {
				t.Errorf("Invalid size %v", s.Size)
			}
			for i, seg := range s.GetSegments() {
				if math.IsNaN(seg.Start.X) || math.IsNaN(seg.End.Y) || seg.Length() == 0 {
					t.Errorf("Segment %d is degenerate: %+v", i, seg)
				}
			}
		})
	}

	if _, err := NewBuiltinScene("missing"); err == nil {
		t.Error("Expected error for unknown scene")
	}
}

func TestRoomScene_Renders(t *testing.T) {
	s := NewRoomScene()
	s.Dispatch.Samples = 2048

	config := renderer.DefaultProgressiveConfig()
	config.NumWorkers = 2
	r, err := renderer.NewRenderer(s, geometry.ImageSize{Width: 64, Height: 36}, s.Dispatch, config, &silentLogger{})
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Close()

	result, err := r.RenderFrame()
	if err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	// The watcher sits in a closed room facing a ceiling light
	if result.Stats.Lit == 0 {
		t.Errorf("Expected some lit samples, got %+v", result.Stats)
	}
	if result.Stats.Miss != 0 {
		t.Errorf("No ray can escape a closed room, got %d misses", result.Stats.Miss)
	}
}

type silentLogger struct{}

func (silentLogger) Printf(string, ...interface{}) {}
