package server

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/df07/go-progressive-linetracer/pkg/loaders"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
	"github.com/df07/go-progressive-linetracer/pkg/scene"
)

// Request limits
const (
	DefaultScene  = "room"
	MinImageSize  = 16
	MaxImageSize  = 2000
	MinSamples    = 64
	MaxSamples    = 1 << 20
	DefaultFrames = 8
	MaxFrames     = 1000
)

// Server handles web requests for the progressive line tracer
type Server struct {
	port      int
	staticDir string
}

// NewServer creates a new web server
func NewServer(port int) *Server {
	return &Server{port: port, staticDir: "static/"}
}

// RenderRequest represents a render request from the client
type RenderRequest struct {
	Scene   string               `json:"scene"`   // Scene ID (e.g. "room" or "file:lantern")
	Width   int                  `json:"width"`   // Image width, 0 keeps the scene size
	Height  int                  `json:"height"`  // Image height, 0 keeps the scene size
	Samples int                  `json:"samples"` // Angular samples per frame, 0 keeps the scene value
	Frames  int                  `json:"frames"`  // Number of frames
	SpanDeg float64              `json:"spanDeg"` // Angular span in degrees, 0 keeps the scene value
	Reset   renderer.ResetPolicy `json:"reset"`   // Buffer lifecycle between frames
	Overlay bool                 `json:"overlay"` // Draw segments and HUD over each frame
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve static files
	mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))

	// API endpoints
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/scenes", s.handleScenes)
	mux.HandleFunc("/api/scene-config", s.handleSceneConfig)
	mux.HandleFunc("/api/inspect", s.handleInspect)
	return mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("Starting web server on http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleScenes lists built-in and file scenes
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	response, err := scene.ListAllScenes()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSceneConfig returns the default configuration for a scene
func (s *Server) handleSceneConfig(w http.ResponseWriter, r *http.Request) {
	sceneName := r.URL.Query().Get("scene")
	if sceneName == "" {
		sceneName = DefaultScene
	}

	sceneObj, err := s.createScene(sceneName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	dispatch := sceneObj.Dispatch
	response := map[string]interface{}{
		"scene": sceneName,
		"defaults": map[string]interface{}{
			"width":      sceneObj.Size.Width,
			"height":     sceneObj.Size.Height,
			"samples":    dispatch.Samples,
			"spanDeg":    dispatch.AngularSpan * 180 / math.Pi,
			"maxBounces": dispatch.MaxBounces,
			"viewScale":  dispatch.ViewScale,
			"frames":     DefaultFrames,
			"segments":   len(sceneObj.Segments),
			"lights":     sceneObj.LightCount(),
		},
		"limits": map[string]interface{}{
			"width":   map[string]int{"min": MinImageSize, "max": MaxImageSize},
			"height":  map[string]int{"min": MinImageSize, "max": MaxImageSize},
			"samples": map[string]int{"min": MinSamples, "max": MaxSamples},
			"frames":  map[string]int{"min": 1, "max": MaxFrames},
			"spanDeg": map[string]float64{"min": 1, "max": 360},
		},
	}

	writeJSON(w, http.StatusOK, response)
}

// parseCommonSceneParams parses the scene and image size shared by render and inspect
func (s *Server) parseCommonSceneParams(r *http.Request, req *RenderRequest) error {
	query := r.URL.Query()
	if sceneName := query.Get("scene"); sceneName != "" {
		req.Scene = sceneName
	} else {
		req.Scene = DefaultScene
	}

	var err error
	if req.Width, err = parseIntParam(query, "width", 0, MinImageSize, MaxImageSize); err != nil {
		return err
	}
	if req.Height, err = parseIntParam(query, "height", 0, MinImageSize, MaxImageSize); err != nil {
		return err
	}
	return nil
}

// parseRenderRequest parses request parameters
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	req := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, req); err != nil {
		return nil, err
	}

	query := r.URL.Query()
	var err error
	if req.Samples, err = parseIntParam(query, "samples", 0, MinSamples, MaxSamples); err != nil {
		return nil, err
	}
	if req.Frames, err = parseIntParam(query, "frames", DefaultFrames, 1, MaxFrames); err != nil {
		return nil, err
	}
	if req.SpanDeg, err = parseFloatParam(query, "spanDeg", 0, 1, 360); err != nil {
		return nil, err
	}
	reset := query.Get("reset")
	if reset == "" {
		reset = renderer.Persist.String()
	}
	if req.Reset, err = renderer.ParseResetPolicy(reset); err != nil {
		return nil, err
	}
	if req.Overlay, err = parseBoolParam(query, "overlay", false); err != nil {
		return nil, err
	}

	// Performance warning
	if req.Width*req.Height > 800*600 && req.Samples > 1<<17 {
		log.Printf("Render warning: Large image with high samples may render slowly")
	}

	return req, nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, fmt.Errorf("%s must be between %g and %g, got: %g", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseBoolParam parses a boolean parameter from URL query
func parseBoolParam(values url.Values, key string, defaultValue bool) (bool, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %s", key, value)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// createScene resolves a built-in scene or a "file:<name>" scene from the scenes directory
func (s *Server) createScene(sceneName string) (*scene.Scene, error) {
	if sceneObj, err := scene.NewBuiltinScene(sceneName); err == nil {
		return sceneObj, nil
	}

	name := strings.TrimPrefix(sceneName, "file:")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("unknown scene: %s", sceneName)
	}
	dir := scene.ScenesDir()
	if dir == "" {
		return nil, fmt.Errorf("unknown scene: %s", sceneName)
	}

	sceneObj, err := loaders.LoadSceneFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("unknown scene: %s (%v)", sceneName, err)
	}
	return sceneObj, nil
}

// writeJSON writes a JSON response with CORS headers
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
