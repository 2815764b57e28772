package renderer

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

// Scene supplies the segments and watcher of each frame
type Scene interface {
	GetSegments() []geometry.LineSegment
	GetWatcher() geometry.Watcher
}

// ResetPolicy decides whether the accumulation buffer survives between frames
type ResetPolicy int

const (
	// Persist keeps accumulating across frames
	Persist ResetPolicy = iota
	// ResetEveryFrame clears the buffer before each dispatch
	ResetEveryFrame
)

// String returns the flag spelling of the policy
func (p ResetPolicy) String() string {
	if p == ResetEveryFrame {
		return "frame"
	}
	return "persist"
}

// ParseResetPolicy parses "persist" or "frame"
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch s {
	case "persist":
		return Persist, nil
	case "frame":
		return ResetEveryFrame, nil
	}
	return Persist, fmt.Errorf("unknown reset policy %q (want persist or frame)", s)
}

// ProgressiveConfig contains configuration for progressive rendering
type ProgressiveConfig struct {
	Frames     int           // Frames to render, 0 renders until cancelled
	NumWorkers int           // Number of parallel workers (0 = use CPU count)
	ChunkSize  int           // Angular samples per worker task (0 = default)
	Reset      ResetPolicy   // Buffer lifecycle between frames
	Update     UpdatePolicy  // Concurrent pixel update strategy
	Overflow   CountOverflow // Sample count overflow behaviour
	Overlay    bool          // Draw the debug line pass over each frame
	OverlayOpt OverlayOptions
}

// DefaultProgressiveConfig returns sensible default values
func DefaultProgressiveConfig() ProgressiveConfig {
	return ProgressiveConfig{
		Frames:     8,
		NumWorkers: 0, // Auto-detect CPU count
		Reset:      Persist,
		Update:     CompareAndSwap,
		Overflow:   Wrap,
		OverlayOpt: DefaultOverlayOptions(),
	}
}

// Validate reports the first invalid field
func (c ProgressiveConfig) Validate() error {
	switch {
	case c.Frames < 0:
		return fmt.Errorf("frames must not be negative, got %d", c.Frames)
	case c.NumWorkers < 0:
		return fmt.Errorf("workers must not be negative, got %d", c.NumWorkers)
	case c.ChunkSize < 0:
		return fmt.Errorf("chunk size must not be negative, got %d", c.ChunkSize)
	}
	return nil
}

// FrameResult contains the result of a single frame
type FrameResult struct {
	Frame    int // 1-based frame number
	Image    *image.RGBA
	Stats    RenderStats
	Duration time.Duration
	IsLast   bool
}

// Renderer runs ray cast, barrier and resolve once per frame
type Renderer struct {
	scene    Scene
	dispatch DispatchConfig
	config   ProgressiveConfig
	caster   *RayCaster
	logger   core.Logger

	mu     sync.Mutex
	size   geometry.ImageSize
	buffer *AccumulationBuffer
	frame  int // Frames rendered so far
}

// NewRenderer creates a renderer for the given scene and image size
func NewRenderer(scene Scene, size geometry.ImageSize, dispatch DispatchConfig, config ProgressiveConfig, logger core.Logger) (*Renderer, error) {
	if !size.Valid() {
		return nil, fmt.Errorf("invalid image size %dx%d", size.Width, size.Height)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid progressive config: %w", err)
	}
	if logger == nil {
		logger = NewDefaultLogger()
	}

	caster, err := NewRayCaster(dispatch, nil, config.ChunkSize, config.NumWorkers)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		scene:    scene,
		dispatch: dispatch,
		config:   config,
		caster:   caster,
		logger:   logger,
		size:     size,
		buffer:   NewAccumulationBuffer(size, config.Update, config.Overflow),
	}, nil
}

// Size returns the current image size
func (r *Renderer) Size() geometry.ImageSize {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// View returns the projection used for the current frame
func (r *Renderer) View() geometry.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view()
}

func (r *Renderer) view() geometry.View {
	return geometry.View{Watcher: r.scene.GetWatcher(), Size: r.size, Scale: r.dispatch.ViewScale}
}

// Buffer returns the accumulation buffer of the current size
func (r *Renderer) Buffer() *AccumulationBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer
}

// ClearAccumulation empties the buffer, reallocating it if size differs
func (r *Renderer) ClearAccumulation(size geometry.ImageSize) error {
	if !size.Valid() {
		return fmt.Errorf("invalid image size %dx%d", size.Width, size.Height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if size != r.size {
		r.size = size
		r.buffer = NewAccumulationBuffer(size, r.config.Update, r.config.Overflow)
		return nil
	}
	r.buffer.Clear()
	return nil
}

// Resize changes the output size, discarding accumulated samples
func (r *Renderer) Resize(size geometry.ImageSize) error {
	return r.ClearAccumulation(size)
}

// RenderFrame dispatches one frame and resolves it
func (r *Renderer) RenderFrame() (FrameResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	startTime := time.Now()

	if r.config.Reset == ResetEveryFrame {
		r.buffer.Clear()
	}

	view := r.view()
	segments := append([]geometry.LineSegment(nil), r.scene.GetSegments()...)
	params := DispatchParams{
		Segments: segments,
		Watcher:  view.Watcher,
		Size:     r.size,
		Frame:    r.frame,
	}

	stats, err := r.caster.Dispatch(params, r.buffer)
	if err != nil {
		return FrameResult{}, fmt.Errorf("frame %d dispatch: %w", r.frame+1, err)
	}
	r.frame++

	img := Resolve(r.buffer)
	stats.FilledPixels = r.buffer.FilledPixels()
	stats.TotalPixels = r.size.Pixels()
	stats.MeanLuminance = CalculateAverageLuminance(img)

	if r.config.Overlay {
		opts := r.config.OverlayOpt
		if opts.HUD == "" {
			opts.HUD = fmt.Sprintf("frame %d  rays %d  lit %.1f%%", r.frame, stats.Cast, stats.LitRatio()*100)
		}
		img, err = DrawOverlay(img, view, segments, opts)
		if err != nil {
			return FrameResult{}, fmt.Errorf("frame %d overlay: %w", r.frame, err)
		}
	}

	return FrameResult{
		Frame:    r.frame,
		Image:    img,
		Stats:    stats,
		Duration: time.Since(startTime),
	}, nil
}

// RenderProgressive renders frames with channel-based communication.
// The caller should read from the channels in separate goroutines.
// The renderer is closed when the frame loop ends.
func (r *Renderer) RenderProgressive(ctx context.Context) (<-chan FrameResult, <-chan error) {
	frameChan := make(chan FrameResult, 1)
	errChan := make(chan error, 1)

	go func() {
		defer close(frameChan)
		defer close(errChan)
		defer r.Close()

		if r.config.Frames > 0 {
			r.logger.Printf("Starting progressive rendering with %d frames (%d workers)...\n", r.config.Frames, r.caster.NumWorkers())
		} else {
			r.logger.Printf("Starting progressive rendering until cancelled (%d workers)...\n", r.caster.NumWorkers())
		}

		for frame := 1; r.config.Frames == 0 || frame <= r.config.Frames; frame++ {
			// Check for cancellation before starting this frame
			select {
			case <-ctx.Done():
				r.logger.Printf("Rendering cancelled before frame %d\n", frame)
				errChan <- ctx.Err()
				return
			default:
			}

			result, err := r.RenderFrame()
			if err != nil {
				errChan <- err
				return
			}
			result.IsLast = frame == r.config.Frames

			r.logger.Printf("Frame %d completed in %v (lit %d of %d rays, %d clipped, coverage %.1f%%)\n",
				result.Frame, result.Duration, result.Stats.Lit, result.Stats.Cast,
				result.Stats.Clipped, result.Stats.Coverage()*100)

			select {
			case frameChan <- result:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frameChan, errChan
}

// Close stops the worker pool
func (r *Renderer) Close() {
	r.caster.Close()
}
