package renderer

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/integrator"
)

// DefaultChunkSize is the number of angular samples per worker task
const DefaultChunkSize = 256

// ErrCasterClosed is returned by Dispatch after Close
var ErrCasterClosed = errors.New("ray caster closed")

// DispatchConfig contains the per-frame sampling configuration
type DispatchConfig struct {
	Samples     int     // Angular samples per dispatch (N)
	AngularSpan float64 // Total angle covered by the N samples, radians
	StartAngle  float64 // Angle of sample 0, radians
	MaxBounces  int     // Bounce budget after the first hit
	HitEpsilon  float64 // Minimum hit distance
	ViewScale   float64 // World-to-screen zoom
}

// DefaultDispatchConfig returns a full-circle sweep of 20480 samples
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Samples:     20 * 1024,
		AngularSpan: 2 * math.Pi,
		StartAngle:  0,
		MaxBounces:  integrator.DefaultMaxBounces,
		HitEpsilon:  geometry.DefaultHitEpsilon,
		ViewScale:   1,
	}
}

// Validate reports the first invalid field
func (c DispatchConfig) Validate() error {
	switch {
	case c.Samples <= 0:
		return fmt.Errorf("samples must be positive, got %d", c.Samples)
	case c.AngularSpan <= 0 || c.AngularSpan > 2*math.Pi+1e-9 || math.IsNaN(c.AngularSpan):
		return fmt.Errorf("angular span must be in (0, 2pi], got %g", c.AngularSpan)
	case c.MaxBounces < 0:
		return fmt.Errorf("max bounces must not be negative, got %d", c.MaxBounces)
	case c.HitEpsilon < 0 || math.IsNaN(c.HitEpsilon):
		return fmt.Errorf("hit epsilon must not be negative, got %g", c.HitEpsilon)
	case c.ViewScale <= 0 || math.IsNaN(c.ViewScale):
		return fmt.Errorf("view scale must be positive, got %g", c.ViewScale)
	}
	return nil
}

// AngleStep returns the angle between consecutive samples
func (c DispatchConfig) AngleStep() float64 {
	return c.AngularSpan / float64(c.Samples)
}

// SampleAngle returns the direction angle of sample i
func (c DispatchConfig) SampleAngle(i int) float64 {
	return c.StartAngle + float64(i)*c.AngleStep()
}

// DispatchParams is the immutable input of one dispatch.
// Segments and the watcher must not change while the dispatch runs.
type DispatchParams struct {
	Segments []geometry.LineSegment
	Watcher  geometry.Watcher
	Size     geometry.ImageSize
	Frame    int // Decorrelates reflection seeds between frames
}

// RayCaster casts one primary ray per angular sample and writes lit samples to a buffer
type RayCaster struct {
	config     DispatchConfig
	integrator integrator.Integrator
	chunkSize  int
	pool       *WorkerPool

	mu     sync.Mutex
	closed bool
}

// NewRayCaster creates a ray caster backed by a worker pool.
// A zero chunkSize selects DefaultChunkSize; numWorkers 0 uses the CPU count.
func NewRayCaster(config DispatchConfig, integ integrator.Integrator, chunkSize, numWorkers int) (*RayCaster, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch config: %w", err)
	}
	if integ == nil {
		integ = integrator.NewPathTracingIntegrator(integrator.Config{
			MaxBounces: config.MaxBounces,
			HitEpsilon: config.HitEpsilon,
		})
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	rc := &RayCaster{
		config:     config,
		integrator: integ,
		chunkSize:  chunkSize,
	}
	rc.pool = NewWorkerPool(rc, rc.numTasks(), numWorkers)
	return rc, nil
}

// Config returns the dispatch configuration
func (rc *RayCaster) Config() DispatchConfig {
	return rc.config
}

// NumWorkers returns the size of the worker pool
func (rc *RayCaster) NumWorkers() int {
	return rc.pool.GetNumWorkers()
}

func (rc *RayCaster) numTasks() int {
	return (rc.config.Samples + rc.chunkSize - 1) / rc.chunkSize
}

// Dispatch casts every angular sample and blocks until all of them are written.
// Returning is the barrier after which the buffer may be resolved.
// Dispatch must not be called concurrently with itself.
func (rc *RayCaster) Dispatch(params DispatchParams, buf *AccumulationBuffer) (RenderStats, error) {
	if !params.Size.Valid() {
		return RenderStats{}, fmt.Errorf("invalid image size %dx%d", params.Size.Width, params.Size.Height)
	}
	if buf == nil || buf.Size() != params.Size {
		return RenderStats{}, fmt.Errorf("accumulation buffer does not match image size %dx%d", params.Size.Width, params.Size.Height)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return RenderStats{}, ErrCasterClosed
	}

	rc.pool.Start()

	// Submit all sample ranges as tasks
	numTasks := 0
	for first := 0; first < rc.config.Samples; first += rc.chunkSize {
		rc.pool.SubmitTask(SampleTask{
			TaskID: numTasks,
			First:  first,
			Count:  min(rc.chunkSize, rc.config.Samples-first),
			Params: &params,
			Buffer: buf,
		})
		numTasks++
	}

	// Every result is read, even after a failure, so the next dispatch starts clean
	var stats RenderStats
	var firstErr error
	for i := 0; i < numTasks; i++ {
		result, ok := rc.pool.GetResult()
		if !ok {
			return RenderStats{}, fmt.Errorf("worker pool closed unexpectedly")
		}
		if result.Error != nil && firstErr == nil {
			firstErr = result.Error
		}
		stats.Add(result.Stats)
	}
	if firstErr != nil {
		return RenderStats{}, fmt.Errorf("dispatch frame %d: %w", params.Frame, firstErr)
	}
	return stats, nil
}

// Close stops the worker pool. Later dispatches return ErrCasterClosed.
func (rc *RayCaster) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	rc.pool.Stop()
}

// castRange traces samples [first, first+count) and writes lit ones to buf
func (rc *RayCaster) castRange(params *DispatchParams, buf *AccumulationBuffer, first, count int) RenderStats {
	view := geometry.View{Watcher: params.Watcher, Size: params.Size, Scale: rc.config.ViewScale}
	frameBase := uint64(params.Frame) * uint64(rc.config.Samples)

	var stats RenderStats
	for i := first; i < first+count; i++ {
		ray := geometry.NewRay(params.Watcher.Position, core.Vec2FromAngle(rc.config.SampleAngle(i)))
		result := rc.integrator.Trace(ray, params.Segments, frameBase+uint64(i))
		stats.Cast++

		switch result.State {
		case integrator.Exhausted:
			stats.Exhausted++
			continue
		case integrator.Miss:
			if result.Absorbed {
				stats.Absorbed++
			} else {
				stats.Miss++
			}
			continue
		}

		x, y, ok := view.ToPixel(result.DrawPosition)
		if !ok {
			stats.Clipped++
			continue
		}
		buf.Add(x, y, result.Color)
		stats.Lit++
	}
	return stats
}
