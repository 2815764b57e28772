package loaders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/scene"
)

// SceneFile is the JSON representation of a scene
type SceneFile struct {
	Name        string `json:"name"`
	Variant     string `json:"variant,omitempty"`
	Description string `json:"description,omitempty"`
	Group       string `json:"group,omitempty"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Watcher  WatcherSpec   `json:"watcher"`
	Dispatch *DispatchSpec `json:"dispatch,omitempty"`

	Bodies        []BodySpec    `json:"bodies"`
	Segments      [][12]float64 `json:"segments,omitempty"`      // Raw records in buffer layout
	SegmentBuffer string        `json:"segmentBuffer,omitempty"` // Binary buffer path, relative to the scene file
}

// WatcherSpec positions the watcher
type WatcherSpec struct {
	Position [2]float64 `json:"position"`
	Offset   [2]float64 `json:"offset"`
}

// DispatchSpec overrides the default sampling configuration
type DispatchSpec struct {
	Samples      int     `json:"samples,omitempty"`
	SpanDegrees  float64 `json:"spanDeg,omitempty"`
	StartDegrees float64 `json:"startDeg,omitempty"`
	MaxBounces   *int    `json:"maxBounces,omitempty"` // nil keeps the default budget
	HitEpsilon   float64 `json:"hitEpsilon,omitempty"`
	ViewScale    float64 `json:"viewScale,omitempty"`
}

// BodySpec describes one body outline
type BodySpec struct {
	Shape       string       `json:"shape"`            // quad, circle or strip
	Size        [2]float64   `json:"size,omitempty"`   // quad width and height
	Sides       int          `json:"sides,omitempty"`  // circle segment count
	Points      [][2]float64 `json:"points,omitempty"` // strip points
	Closed      bool         `json:"closed,omitempty"` // close the strip
	Position    [2]float64   `json:"position"`
	RotationDeg float64      `json:"rotationDeg,omitempty"`
	Scale       float64      `json:"scale,omitempty"`
	Color       [3]float64   `json:"color"`
	Light       float64      `json:"light,omitempty"`
	Roughness   float64      `json:"roughness,omitempty"`
	Seed        float64      `json:"seed,omitempty"`
}

// LoadSceneFile loads a JSON scene from disk
func LoadSceneFile(filename string) (*scene.Scene, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	s, err := ParseScene(data, filepath.Dir(filename))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(filename), err)
	}
	return s, nil
}

// ParseScene builds a scene from JSON. baseDir resolves segmentBuffer paths.
func ParseScene(data []byte, baseDir string) (*scene.Scene, error) {
	var file SceneFile
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}

	s := scene.NewScene(file.Name)
	if file.Width > 0 && file.Height > 0 {
		s.Size = geometry.ImageSize{Width: file.Width, Height: file.Height}
	}
	s.Watcher = geometry.Watcher{
		Position: vec2(file.Watcher.Position),
		Offset:   vec2(file.Watcher.Offset),
	}

	if d := file.Dispatch; d != nil {
		if d.Samples > 0 {
			s.Dispatch.Samples = d.Samples
		}
		if d.SpanDegrees > 0 {
			s.Dispatch.AngularSpan = d.SpanDegrees * math.Pi / 180
		}
		s.Dispatch.StartAngle = d.StartDegrees * math.Pi / 180
		if d.MaxBounces != nil {
			s.Dispatch.MaxBounces = *d.MaxBounces
		}
		if d.HitEpsilon > 0 {
			s.Dispatch.HitEpsilon = d.HitEpsilon
		}
		if d.ViewScale > 0 {
			s.Dispatch.ViewScale = d.ViewScale
		}
	}
	if err := s.Dispatch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch: %w", err)
	}

	for i, bodySpec := range file.Bodies {
		body, err := bodySpec.toBody()
		if err != nil {
			return nil, fmt.Errorf("body %d: %w", i, err)
		}
		s.AddBody(body)
	}

	for i, r := range file.Segments {
		var record segmentRecord
		for j, v := range r {
			record[j] = float32(v)
		}
		seg := fromRecord(record)
		if err := validateSegment(seg); err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		s.AddSegments(seg)
	}

	if file.SegmentBuffer != "" {
		path := file.SegmentBuffer
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		segments, err := LoadSegmentFile(path)
		if err != nil {
			return nil, err
		}
		s.AddSegments(segments...)
	}

	return s, nil
}

func (b BodySpec) toBody() (scene.Body, error) {
	var shape scene.Shape
	switch b.Shape {
	case "quad":
		if b.Size[0] <= 0 || b.Size[1] <= 0 {
			return scene.Body{}, fmt.Errorf("quad needs a positive size, got %v", b.Size)
		}
		shape = scene.Quad(b.Size[0], b.Size[1])
	case "circle":
		if b.Sides < 3 {
			return scene.Body{}, fmt.Errorf("circle needs at least 3 sides, got %d", b.Sides)
		}
		shape = scene.Circle(b.Sides)
	case "strip":
		if len(b.Points) < 2 {
			return scene.Body{}, fmt.Errorf("strip needs at least 2 points, got %d", len(b.Points))
		}
		points := make([]core.Vec2, 0, len(b.Points)+1)
		for _, p := range b.Points {
			points = append(points, vec2(p))
		}
		if b.Closed {
			points = append(points, points[0])
		}
		shape = scene.Strip(points...)
	default:
		return scene.Body{}, fmt.Errorf("unknown shape %q", b.Shape)
	}

	body := scene.Body{
		Shape:     shape,
		Position:  vec2(b.Position),
		Rotation:  b.RotationDeg * math.Pi / 180,
		Scale:     b.Scale,
		Color:     core.NewVec3(b.Color[0], b.Color[1], b.Color[2]),
		Light:     b.Light,
		Roughness: b.Roughness,
		Seed:      b.Seed,
	}
	look := geometry.LineSegment{Light: body.Light, Color: body.Color, Roughness: body.Roughness, Seed: body.Seed}
	if err := validateSegment(look); err != nil {
		return scene.Body{}, err
	}
	return body, nil
}

func vec2(p [2]float64) core.Vec2 {
	return core.NewVec2(p[0], p[1])
}
