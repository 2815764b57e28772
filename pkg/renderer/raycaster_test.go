package renderer

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/integrator"
)

// MockIntegrator records every traced ray and returns a fixed result
type MockIntegrator struct {
	result integrator.PathResult

	mu        sync.Mutex
	angles    []float64
	sampleIDs []uint64
}

func (m *MockIntegrator) Trace(ray geometry.Ray, segments []geometry.LineSegment, sampleID uint64) integrator.PathResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.angles = append(m.angles, ray.Direction.Angle())
	m.sampleIDs = append(m.sampleIDs, sampleID)
	return m.result
}

// lightRing builds a closed polygon of emissive segments around the origin
func lightRing(sides int, radius float64, color core.Vec3) []geometry.LineSegment {
	segments := make([]geometry.LineSegment, 0, sides)
	for i := 0; i < sides; i++ {
		a0 := 2 * math.Pi * float64(i) / float64(sides)
		a1 := 2 * math.Pi * float64(i+1) / float64(sides)
		segments = append(segments, geometry.NewLightSegment(
			core.Vec2FromAngle(a0).Multiply(radius),
			core.Vec2FromAngle(a1).Multiply(radius),
			color, 1))
	}
	return segments
}

func testDispatchConfig(samples int) DispatchConfig {
	config := DefaultDispatchConfig()
	config.Samples = samples
	return config
}

func newTestCaster(t *testing.T, config DispatchConfig, integ integrator.Integrator) *RayCaster {
	t.Helper()
	rc, err := NewRayCaster(config, integ, 16, 4)
	if err != nil {
		t.Fatalf("NewRayCaster failed: %v", err)
	}
	t.Cleanup(rc.Close)
	return rc
}

func TestDispatchConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DispatchConfig)
		wantErr bool
	}{
		{"Default", func(c *DispatchConfig) {}, false},
		{"Half circle", func(c *DispatchConfig) { c.AngularSpan = math.Pi }, false},
		{"Zero samples", func(c *DispatchConfig) { c.Samples = 0 }, true},
		{"Zero span", func(c *DispatchConfig) { c.AngularSpan = 0 }, true},
		{"Span above full circle", func(c *DispatchConfig) { c.AngularSpan = 7 }, true},
		{"Negative bounces", func(c *DispatchConfig) { c.MaxBounces = -1 }, true},
		{"Negative epsilon", func(c *DispatchConfig) { c.HitEpsilon = -1 }, true},
		{"Zero view scale", func(c *DispatchConfig) { c.ViewScale = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDispatchConfig()
			tt.modify(&config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultDispatchConfig(t *testing.T) {
	config := DefaultDispatchConfig()
	if config.Samples != 20480 {
		t.Errorf("Expected 20480 samples, got %d", config.Samples)
	}
	if config.MaxBounces != 15 {
		t.Errorf("Expected bounce budget 15, got %d", config.MaxBounces)
	}
	if config.AngularSpan != 2*math.Pi {
		t.Errorf("Expected a full circle, got %v", config.AngularSpan)
	}
}

func TestRayCaster_MissLeavesBufferUnchanged(t *testing.T) {
	mock := &MockIntegrator{result: integrator.PathResult{State: integrator.Miss}}
	rc := newTestCaster(t, testDispatchConfig(500), mock)
	size := geometry.ImageSize{Width: 16, Height: 8}
	buf := NewAccumulationBuffer(size, CompareAndSwap, Wrap)

	stats, err := rc.Dispatch(DispatchParams{Size: size}, buf)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if stats.Cast != 500 || stats.Miss != 500 || stats.Lit != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			if buf.Word(x, y) != 0 {
				t.Fatalf("Pixel (%d,%d) was written by a missed ray", x, y)
			}
		}
	}
}

func TestRayCaster_ExhaustedAndAbsorbedAreNotDrawn(t *testing.T) {
	size := geometry.ImageSize{Width: 8, Height: 8}
	tests := []struct {
		name   string
		result integrator.PathResult
		check  func(RenderStats) bool
	}{
		{"Exhausted", integrator.PathResult{State: integrator.Exhausted, HasFirstHit: true}, func(s RenderStats) bool { return s.Exhausted == 64 }},
		{"Absorbed", integrator.PathResult{State: integrator.Miss, Absorbed: true, HasFirstHit: true}, func(s RenderStats) bool { return s.Absorbed == 64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := newTestCaster(t, testDispatchConfig(64), &MockIntegrator{result: tt.result})
			buf := NewAccumulationBuffer(size, CompareAndSwap, Wrap)

			stats, err := rc.Dispatch(DispatchParams{Size: size}, buf)
			if err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}
			if !tt.check(stats) || stats.Lit != 0 {
				t.Errorf("Unexpected stats: %+v", stats)
			}
			if buf.FilledPixels() != 0 {
				t.Errorf("Expected empty buffer, got %d filled pixels", buf.FilledPixels())
			}
		})
	}
}

func TestRayCaster_ClipsOffscreenSamples(t *testing.T) {
	mock := &MockIntegrator{result: integrator.PathResult{
		State:        integrator.Lit,
		Color:        core.White,
		DrawPosition: core.NewVec2(10, 10),
		HasFirstHit:  true,
	}}
	rc := newTestCaster(t, testDispatchConfig(100), mock)
	size := geometry.ImageSize{Width: 8, Height: 8}
	buf := NewAccumulationBuffer(size, CompareAndSwap, Wrap)

	stats, err := rc.Dispatch(DispatchParams{Size: size}, buf)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if stats.Clipped != 100 || stats.Lit != 0 {
		t.Errorf("Expected all samples clipped, got %+v", stats)
	}
	if buf.FilledPixels() != 0 {
		t.Errorf("Clipped samples must not be written")
	}
}

func TestRayCaster_SampleAnglesAndIDs(t *testing.T) {
	mock := &MockIntegrator{result: integrator.PathResult{State: integrator.Miss}}
	config := testDispatchConfig(40)
	config.AngularSpan = math.Pi
	config.StartAngle = 0.25
	rc := newTestCaster(t, config, mock)
	size := geometry.ImageSize{Width: 4, Height: 4}

	if _, err := rc.Dispatch(DispatchParams{Size: size, Frame: 2}, NewAccumulationBuffer(size, CompareAndSwap, Wrap)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if len(mock.sampleIDs) != 40 {
		t.Fatalf("Expected 40 traced rays, got %d", len(mock.sampleIDs))
	}

	ids := append([]uint64(nil), mock.sampleIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i, id := range ids {
		if id != uint64(80+i) {
			t.Fatalf("Expected sample IDs 80..119 for frame 2, got %v at %d", id, i)
		}
	}

	for i := 0; i < 40; i++ {
		want := 0.25 + float64(i)*math.Pi/40
		if want > math.Pi {
			// Angle() reports in (-pi, pi]
			want -= 2 * math.Pi
		}
		found := false
		for _, a := range mock.angles {
			if math.Abs(a-want) < 1e-9 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Missing angle %v for sample %d", want, i)
		}
	}
}

func TestRayCaster_LightRingFillsBuffer(t *testing.T) {
	config := testDispatchConfig(2048)
	config.StartAngle = 0.0123 // keep samples off the polygon vertices
	rc := newTestCaster(t, config, nil)
	size := geometry.ImageSize{Width: 64, Height: 64}
	buf := NewAccumulationBuffer(size, CompareAndSwap, Wrap)
	color := core.NewVec3(1, 0.4, 0.2)

	stats, err := rc.Dispatch(DispatchParams{
		Segments: lightRing(32, 0.5, color),
		Size:     size,
	}, buf)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if stats.Lit != 2048 {
		t.Errorf("Expected every ray to reach the ring, got %+v", stats)
	}
	if buf.FilledPixels() == 0 {
		t.Fatal("Expected filled pixels")
	}

	want := EncodePixel(PixelSample{Color: color}) & 0xffffff
	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			p := buf.At(x, y)
			if p.Count == 0 {
				continue
			}
			if buf.Word(x, y)&0xffffff != want {
				t.Fatalf("Pixel (%d,%d) has colour %v, expected %v", x, y, p.Color, color)
			}
			// The ring of radius 0.5 sits a quarter of the way in from each edge
			if x < 12 || x > 52 || y < 12 || y > 52 {
				t.Errorf("Pixel (%d,%d) is far from the ring", x, y)
			}
		}
	}
}

func TestRayCaster_DispatchErrors(t *testing.T) {
	rc, err := NewRayCaster(testDispatchConfig(8), nil, 0, 1)
	if err != nil {
		t.Fatalf("NewRayCaster failed: %v", err)
	}
	size := geometry.ImageSize{Width: 4, Height: 4}

	if _, err := rc.Dispatch(DispatchParams{Size: geometry.ImageSize{}}, NewAccumulationBuffer(size, CompareAndSwap, Wrap)); err == nil {
		t.Error("Expected error for invalid size")
	}
	if _, err := rc.Dispatch(DispatchParams{Size: size}, NewAccumulationBuffer(geometry.ImageSize{Width: 2, Height: 2}, CompareAndSwap, Wrap)); err == nil {
		t.Error("Expected error for mismatched buffer")
	}

	rc.Close()
	rc.Close()
	if _, err := rc.Dispatch(DispatchParams{Size: size}, NewAccumulationBuffer(size, CompareAndSwap, Wrap)); !errors.Is(err, ErrCasterClosed) {
		t.Errorf("Expected ErrCasterClosed, got %v", err)
	}

	if _, err := NewRayCaster(DispatchConfig{}, nil, 0, 1); err == nil {
		t.Error("Expected error for zero config")
	}
}

// flakyIntegrator panics on one sample while fail is set
type flakyIntegrator struct {
	fail atomic.Bool
}

func (f *flakyIntegrator) Trace(ray geometry.Ray, segments []geometry.LineSegment, sampleID uint64) integrator.PathResult {
	if f.fail.Load() && sampleID == 5 {
		panic("bad segment data")
	}
	return integrator.PathResult{State: integrator.Miss}
}

func TestRayCaster_PanicReportedAndResultsDrained(t *testing.T) {
	integ := &flakyIntegrator{}
	integ.fail.Store(true)
	rc := newTestCaster(t, testDispatchConfig(64), integ)
	size := geometry.ImageSize{Width: 4, Height: 4}
	buf := NewAccumulationBuffer(size, CompareAndSwap, Wrap)

	_, err := rc.Dispatch(DispatchParams{Size: size}, buf)
	if err == nil || !strings.Contains(err.Error(), "bad segment data") {
		t.Fatalf("Expected the panic as a dispatch error, got %v", err)
	}

	// No stale results from the failed dispatch may leak into the next one
	integ.fail.Store(false)
	stats, err := rc.Dispatch(DispatchParams{Size: size, Frame: 1}, buf)
	if err != nil {
		t.Fatalf("Second dispatch failed: %v", err)
	}
	if stats.Cast != 64 || stats.Miss != 64 {
		t.Errorf("Expected 64 cast and missed samples, got cast=%d miss=%d", stats.Cast, stats.Miss)
	}
}

func TestRayCaster_CloseWithoutDispatch(t *testing.T) {
	rc, err := NewRayCaster(testDispatchConfig(8), nil, 0, 2)
	if err != nil {
		t.Fatalf("NewRayCaster failed: %v", err)
	}
	rc.Close()
	if rc.pool.Started() {
		t.Error("Close should not launch workers that never ran")
	}

	used := newTestCaster(t, testDispatchConfig(8), nil)
	size := geometry.ImageSize{Width: 4, Height: 4}
	if _, err := used.Dispatch(DispatchParams{Size: size}, NewAccumulationBuffer(size, CompareAndSwap, Wrap)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !used.pool.Started() {
		t.Error("Dispatch should start the workers")
	}
}
