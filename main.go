package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/gg"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/loaders"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
	"github.com/df07/go-progressive-linetracer/pkg/scene"
)

// cliConfig holds the parsed command line
type cliConfig struct {
	Scene      string
	Width      int
	Height     int
	Samples    int
	SpanDeg    float64
	Frames     int
	Workers    int
	Reset      renderer.ResetPolicy
	Overflow   renderer.CountOverflow
	Update     renderer.UpdatePolicy
	Overlay    bool
	Output     string
	Scale      int
	SaveFrames bool
	Verbose    bool
	ListScenes bool

	Watcher *core.Vec2 // Watcher position override, nil keeps the scene's
	Pan     core.Vec2  // Added to the scene's pan offset
	Compare string     // Reference image to diff the final frame against
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stdout)
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line arguments
func parseFlags(args []string, out io.Writer) (cliConfig, error) {
	var cfg cliConfig
	var reset, overflow, update, watcher, pan string

	fs := flag.NewFlagSet("linetracer", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.Scene, "scene", "room", "Built-in scene name, scene file name in scenes/, or path to a .json scene")
	fs.IntVar(&cfg.Width, "width", 0, "Image width (0 = scene default)")
	fs.IntVar(&cfg.Height, "height", 0, "Image height (0 = scene default)")
	fs.IntVar(&cfg.Samples, "samples", 0, "Angular samples per frame (0 = scene default)")
	fs.Float64Var(&cfg.SpanDeg, "span", 0, "Angular span in degrees (0 = scene default)")
	fs.IntVar(&cfg.Frames, "frames", 8, "Number of progressive frames")
	fs.IntVar(&cfg.Workers, "workers", 0, "Number of worker goroutines (0 = CPU count)")
	fs.StringVar(&reset, "reset", "persist", "Accumulation policy between frames: persist or frame")
	fs.StringVar(&overflow, "overflow", "wrap", "Sample count overflow: wrap or saturate")
	fs.StringVar(&update, "update", "cas", "Concurrent pixel updates: cas or optimistic")
	fs.BoolVar(&cfg.Overlay, "overlay", false, "Draw segment outlines and a HUD over the image")
	fs.StringVar(&cfg.Output, "output", "", "Output file (default output/<scene>/render_<timestamp>.png)")
	fs.IntVar(&cfg.Scale, "scale", 1, "Integer upscale factor for the saved image")
	fs.BoolVar(&cfg.SaveFrames, "save-frames", false, "Save every frame, not just the last")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Structured debug logging")
	fs.BoolVar(&cfg.ListScenes, "list", false, "List available scenes and exit")
	fs.StringVar(&watcher, "watcher", "", "Watcher position as x,y (default: scene watcher)")
	fs.StringVar(&pan, "pan", "", "Pan the view by dx,dy in world units")
	fs.StringVar(&cfg.Compare, "compare", "", "Reference PNG/JPEG to compare the final frame against")
	fs.Usage = func() {
		fmt.Fprintln(out, "Progressive Line Tracer")
		fmt.Fprintln(out, "Usage: linetracer [options]")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Built-in scenes: %s\n", strings.Join(scene.BuiltinNames(), ", "))
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	var err error
	if cfg.Reset, err = renderer.ParseResetPolicy(reset); err != nil {
		return cfg, err
	}
	switch overflow {
	case "wrap":
		cfg.Overflow = renderer.Wrap
	case "saturate":
		cfg.Overflow = renderer.Saturate
	default:
		return cfg, fmt.Errorf("unknown overflow policy %q (want wrap or saturate)", overflow)
	}
	switch update {
	case "cas":
		cfg.Update = renderer.CompareAndSwap
	case "optimistic":
		cfg.Update = renderer.Optimistic
	default:
		return cfg, fmt.Errorf("unknown update policy %q (want cas or optimistic)", update)
	}

	if watcher != "" {
		p, err := parseVec2(watcher)
		if err != nil {
			return cfg, fmt.Errorf("invalid -watcher: %w", err)
		}
		cfg.Watcher = &p
	}
	if pan != "" {
		if cfg.Pan, err = parseVec2(pan); err != nil {
			return cfg, fmt.Errorf("invalid -pan: %w", err)
		}
	}

	switch {
	case cfg.Width < 0 || cfg.Height < 0:
		return cfg, fmt.Errorf("width and height must not be negative")
	case cfg.Frames < 1:
		return cfg, fmt.Errorf("frames must be at least 1, got %d", cfg.Frames)
	case cfg.Scale < 1 || cfg.Scale > 8:
		return cfg, fmt.Errorf("scale must be between 1 and 8, got %d", cfg.Scale)
	}
	return cfg, nil
}

// parseVec2 parses "x,y"
func parseVec2(s string) (core.Vec2, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.Vec2{}, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Vec2{}, fmt.Errorf("bad x in %q", s)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Vec2{}, fmt.Errorf("bad y in %q", s)
	}
	return core.NewVec2(x, y), nil
}

// createScene resolves a built-in scene, a scene file name or a scene file path
func createScene(sceneType string) (*scene.Scene, error) {
	if sceneType == "" {
		return nil, fmt.Errorf("empty scene name")
	}
	if s, err := scene.NewBuiltinScene(sceneType); err == nil {
		return s, nil
	}

	path := sceneFilePath(sceneType)
	if path == "" {
		return nil, fmt.Errorf("unknown scene %q (built-ins: %s)", sceneType, strings.Join(scene.BuiltinNames(), ", "))
	}
	s, err := loaders.LoadSceneFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scene %s: %w", path, err)
	}
	return s, nil
}

// sceneFilePath maps a scene ID, name or path to a JSON file, or "" when none exists
func sceneFilePath(sceneType string) string {
	name := strings.TrimPrefix(sceneType, "file:")
	if strings.HasSuffix(name, ".json") {
		return name
	}
	if dir := scene.ScenesDir(); dir != "" {
		path := filepath.Join(dir, name+".json")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// createOutputDir returns output/<scene base name>
func createOutputDir(sceneType string) string {
	name := strings.TrimPrefix(sceneType, "file:")
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." {
		base = "scene"
	}
	return filepath.Join("output", base)
}

// slogLogger adapts a slog.Logger to core.Logger
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Printf(format string, args ...interface{}) {
	s.l.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// run renders the configured scene and writes the image(s)
func run(ctx context.Context, cfg cliConfig, out io.Writer) error {
	if cfg.ListScenes {
		response, err := scene.ListAllScenes()
		if err != nil {
			return err
		}
		for _, group := range response.Groups {
			fmt.Fprintf(out, "%s:\n", group.Name)
			for _, s := range group.Scenes {
				fmt.Fprintf(out, "  %-12s %s\n", s.ID, s.Description)
			}
		}
		return nil
	}

	var logger core.Logger = renderer.NewDefaultLogger()
	if cfg.Verbose {
		sl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		gg.SetLogger(sl)
		logger = slogLogger{l: sl}
	}

	selected, err := createScene(cfg.Scene)
	if err != nil {
		return err
	}
	if cfg.Watcher != nil {
		selected.SetWatcherPosition(*cfg.Watcher)
	}
	selected.MoveWatcher(cfg.Pan)

	size := selected.Size
	if cfg.Width > 0 {
		size.Width = cfg.Width
	}
	if cfg.Height > 0 {
		size.Height = cfg.Height
	}
	dispatch := selected.Dispatch
	if cfg.Samples > 0 {
		dispatch.Samples = cfg.Samples
	}
	if cfg.SpanDeg > 0 {
		dispatch.AngularSpan = cfg.SpanDeg * math.Pi / 180
	}

	config := renderer.DefaultProgressiveConfig()
	config.Frames = cfg.Frames
	config.NumWorkers = cfg.Workers
	config.Reset = cfg.Reset
	config.Overflow = cfg.Overflow
	config.Update = cfg.Update
	config.Overlay = cfg.Overlay

	r, err := renderer.NewRenderer(selected, size, dispatch, config, logger)
	if err != nil {
		return err
	}

	output := cfg.Output
	if output == "" {
		timestamp := time.Now().Format("20060102_150405")
		output = filepath.Join(createOutputDir(cfg.Scene), fmt.Sprintf("render_%s.png", timestamp))
	}

	fmt.Fprintf(out, "Rendering %s at %dx%d, %d samples x %d frames...\n",
		selected.Name, size.Width, size.Height, dispatch.Samples, cfg.Frames)

	startTime := time.Now()

	// Cancelled on a failed save so the frame loop stops and closes its workers
	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	frameChan, errChan := r.RenderProgressive(renderCtx)

	var last renderer.FrameResult
	var saveErr error
	for result := range frameChan {
		last = result
		if saveErr == nil && cfg.SaveFrames && !result.IsLast {
			if err := saveFrame(frameFilename(output, result.Frame), result, cfg.Scale); err != nil {
				saveErr = err
				cancel()
			}
		}
	}
	renderErr := <-errChan
	if saveErr != nil {
		return saveErr
	}
	if renderErr != nil {
		if !errors.Is(renderErr, context.Canceled) || last.Image == nil {
			return renderErr
		}
		fmt.Fprintf(out, "Interrupted after frame %d, saving partial render\n", last.Frame)
	}
	if last.Image == nil {
		return fmt.Errorf("no frame rendered")
	}

	if err := saveFrame(output, last, cfg.Scale); err != nil {
		return err
	}

	fmt.Fprintf(out, "Render completed in %v (lit %.1f%%, coverage %.1f%%)\n",
		time.Since(startTime), last.Stats.LitRatio()*100, last.Stats.Coverage()*100)
	fmt.Fprintf(out, "Render saved as %s\n", output)

	if cfg.Compare != "" {
		diff, err := compareImages(output, cfg.Compare)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Mean difference vs %s: %.4f\n", cfg.Compare, diff)
	}
	return nil
}

// compareImages returns the mean absolute channel difference of two image files
func compareImages(rendered, reference string) (float64, error) {
	a, err := loaders.LoadImage(rendered)
	if err != nil {
		return 0, err
	}
	b, err := loaders.LoadImage(reference)
	if err != nil {
		return 0, fmt.Errorf("load reference: %w", err)
	}
	return a.MeanAbsDiff(b)
}

func saveFrame(filename string, result renderer.FrameResult, scale int) error {
	if err := loaders.SaveImage(filename, renderer.Upscale(result.Image, scale)); err != nil {
		return fmt.Errorf("save frame %d: %w", result.Frame, err)
	}
	return nil
}

// frameFilename inserts a frame number before the extension
func frameFilename(output string, frame int) string {
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s_f%03d%s", strings.TrimSuffix(output, ext), frame, ext)
}
