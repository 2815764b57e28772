package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/loaders"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
)

func TestCreateScene(t *testing.T) {
	tests := []struct {
		name        string
		sceneType   string
		expectError bool
	}{
		// Built-in scenes
		{"room scene", "room", false},
		{"ring scene", "ring", false},
		{"prism scene", "prism", false},

		// Scene files (by name and ID)
		{"mirror-maze by name", "mirror-maze", false},
		{"lantern by ID", "file:lantern", false},

		// Scene files (by path)
		{"direct scene path", "scenes/lantern.json", false},

		// Invalid scenes
		{"unknown scene", "nonexistent", true},
		{"invalid scene path", "scenes/nonexistent.json", true},
		{"empty scene name", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scene, err := createScene(tt.sceneType)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for scene type '%s', but got none", tt.sceneType)
				}
				if scene != nil {
					t.Errorf("Expected nil scene for invalid scene type '%s', got %v", tt.sceneType, scene.Name)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error for scene type '%s': %v", tt.sceneType, err)
			}
			if scene == nil {
				t.Fatalf("Expected scene for valid scene type '%s', got nil", tt.sceneType)
			}
			if !scene.Size.Valid() {
				t.Errorf("Scene size invalid: %+v", scene.Size)
			}
			if err := scene.Dispatch.Validate(); err != nil {
				t.Errorf("Scene dispatch invalid: %v", err)
			}
			if scene.LightCount() == 0 {
				t.Errorf("Scene '%s' has no light segments", tt.sceneType)
			}
		})
	}
}

func TestSceneFilePath(t *testing.T) {
	tests := []struct {
		name      string
		sceneType string
		expected  string
	}{
		{"by name", "lantern", filepath.Join("scenes", "lantern.json")},
		{"by ID", "file:mirror-maze", filepath.Join("scenes", "mirror-maze.json")},
		{"by path", "scenes/lantern.json", "scenes/lantern.json"},
		{"missing path kept", "other/missing.json", "other/missing.json"},
		{"nonexistent name", "nonexistent", ""},
		{"built-in name", "room", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sceneFilePath(tt.sceneType); got != tt.expected {
				t.Errorf("sceneFilePath(%q) = %q, expected %q", tt.sceneType, got, tt.expected)
			}
		})
	}
}

func TestCreateOutputDir(t *testing.T) {
	tests := []struct {
		name      string
		sceneType string
		expected  string
	}{
		{"built-in scene", "room", filepath.Join("output", "room")},
		{"scene file by name", "mirror-maze", filepath.Join("output", "mirror-maze")},
		{"scene file by ID", "file:lantern", filepath.Join("output", "lantern")},
		{"scene file path", "scenes/lantern.json", filepath.Join("output", "lantern")},
		{"nested scene path", "scenes/subdir/my-scene.json", filepath.Join("output", "my-scene")},
		{"empty", "", filepath.Join("output", "scene")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := createOutputDir(tt.sceneType); got != tt.expected {
				t.Errorf("createOutputDir(%q) = %q, expected %q", tt.sceneType, got, tt.expected)
			}
		})
	}
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.Scene != "room" {
		t.Errorf("Expected default scene room, got %s", cfg.Scene)
	}
	if cfg.Frames != 8 || cfg.Scale != 1 {
		t.Errorf("Unexpected defaults: frames=%d scale=%d", cfg.Frames, cfg.Scale)
	}
	if cfg.Reset != renderer.Persist || cfg.Overflow != renderer.Wrap || cfg.Update != renderer.CompareAndSwap {
		t.Errorf("Unexpected policies: %v %v %v", cfg.Reset, cfg.Overflow, cfg.Update)
	}
}

func TestParseFlags_Policies(t *testing.T) {
	cfg, err := parseFlags([]string{"-reset", "frame", "-overflow", "saturate", "-update", "optimistic"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.Reset != renderer.ResetEveryFrame || cfg.Overflow != renderer.Saturate || cfg.Update != renderer.Optimistic {
		t.Errorf("Policies not applied: %v %v %v", cfg.Reset, cfg.Overflow, cfg.Update)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown reset", []string{"-reset", "sometimes"}},
		{"unknown overflow", []string{"-overflow", "clip"}},
		{"unknown update", []string{"-update", "locked"}},
		{"zero frames", []string{"-frames", "0"}},
		{"scale too large", []string{"-scale", "9"}},
		{"negative width", []string{"-width", "-1"}},
		{"unknown flag", []string{"-bogus"}},
		{"watcher missing y", []string{"-watcher", "1"}},
		{"pan not numeric", []string{"-pan", "a,b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
		})
	}
}

func TestParseFlags_WatcherAndPan(t *testing.T) {
	cfg, err := parseFlags([]string{"-watcher", "0.1,-0.2", "-pan", "0.5, 0"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.Watcher == nil || *cfg.Watcher != core.NewVec2(0.1, -0.2) {
		t.Errorf("Expected watcher (0.1,-0.2), got %v", cfg.Watcher)
	}
	if cfg.Pan != core.NewVec2(0.5, 0) {
		t.Errorf("Expected pan (0.5,0), got %v", cfg.Pan)
	}

	cfg, err = parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if cfg.Watcher != nil || cfg.Pan != (core.Vec2{}) {
		t.Errorf("Expected no watcher override and zero pan, got %v %v", cfg.Watcher, cfg.Pan)
	}
}

func TestParseVec2(t *testing.T) {
	tests := []struct {
		input       string
		expected    core.Vec2
		expectError bool
	}{
		{"1,2", core.NewVec2(1, 2), false},
		{" -0.5 , 3e-1 ", core.NewVec2(-0.5, 0.3), false},
		{"1", core.Vec2{}, true},
		{"1,2,3", core.Vec2{}, true},
		{"x,2", core.Vec2{}, true},
		{"1,", core.Vec2{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseVec2(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for %q, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for %q: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("parseVec2(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"-help"}, &out)
	if err != flag.ErrHelp {
		t.Fatalf("Expected flag.ErrHelp, got %v", err)
	}
	if !strings.Contains(out.String(), "Built-in scenes: prism, ring, room") {
		t.Errorf("Help output missing scene list:\n%s", out.String())
	}
}

func TestFrameFilename(t *testing.T) {
	got := frameFilename(filepath.Join("out", "render.png"), 3)
	if want := filepath.Join("out", "render_f003.png"); got != want {
		t.Errorf("frameFilename = %q, expected %q", got, want)
	}
}

func TestRun_SavesFrames(t *testing.T) {
	output := filepath.Join(t.TempDir(), "render.png")
	cfg, err := parseFlags([]string{
		"-scene", "room", "-width", "64", "-height", "36", "-samples", "512",
		"-frames", "2", "-scale", "2", "-save-frames", "-output", output,
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "Render saved as "+output) {
		t.Errorf("Unexpected output:\n%s", out.String())
	}

	img, err := loaders.LoadImage(output)
	if err != nil {
		t.Fatalf("Failed to load final frame: %v", err)
	}
	if img.Width != 128 || img.Height != 72 {
		t.Errorf("Expected upscaled 128x72 image, got %dx%d", img.Width, img.Height)
	}

	if _, err := os.Stat(frameFilename(output, 1)); err != nil {
		t.Errorf("Expected intermediate frame file: %v", err)
	}
	if _, err := os.Stat(frameFilename(output, 2)); err == nil {
		t.Errorf("Last frame should only be saved under the final name")
	}
}

func TestRun_ListScenes(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), cliConfig{ListScenes: true}, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, want := range []string{"Built-in Scenes:", "room", "file:lantern"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Scene list missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_FailedFrameSaveStopsWorkers(t *testing.T) {
	// A regular file where the output directory should be makes every save fail
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to create blocking file: %v", err)
	}
	output := filepath.Join(blocker, "sub", "render.png")

	cfg, err := parseFlags([]string{
		"-scene", "room", "-width", "32", "-height", "18", "-samples", "256",
		"-frames", "3", "-save-frames", "-output", output,
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}

	baseline := runtime.NumGoroutine()
	err = run(context.Background(), cfg, io.Discard)
	if err == nil {
		t.Fatal("Expected error from unwritable output")
	}
	if !strings.Contains(err.Error(), "save frame 1") {
		t.Errorf("Expected first frame save error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > baseline {
		t.Errorf("Render goroutines still running after failed save: %d > %d", n, baseline)
	}
}

func TestRun_CompareAgainstOwnOutput(t *testing.T) {
	dir := t.TempDir()
	reference := filepath.Join(dir, "reference.png")
	args := []string{"-scene", "ring", "-width", "32", "-height", "32", "-samples", "256", "-frames", "1", "-watcher", "0,0", "-pan", "0.1,0"}

	cfg, err := parseFlags(append(args, "-output", reference), io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if err := run(context.Background(), cfg, io.Discard); err != nil {
		t.Fatalf("Reference render failed: %v", err)
	}

	cfg, err = parseFlags(append(args, "-output", filepath.Join(dir, "render.png"), "-compare", reference), io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if want := "Mean difference vs " + reference + ": 0.0000"; !strings.Contains(out.String(), want) {
		t.Errorf("Expected %q in output:\n%s", want, out.String())
	}
}

func TestRun_CompareMissingReference(t *testing.T) {
	dir := t.TempDir()
	cfg, err := parseFlags([]string{
		"-scene", "room", "-width", "16", "-height", "16", "-samples", "64", "-frames", "1",
		"-output", filepath.Join(dir, "render.png"), "-compare", filepath.Join(dir, "missing.png"),
	}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags failed: %v", err)
	}
	if err := run(context.Background(), cfg, io.Discard); err == nil || !strings.Contains(err.Error(), "load reference") {
		t.Errorf("Expected reference load error, got %v", err)
	}
}
