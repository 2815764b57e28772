package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/renderer"
	"github.com/df07/go-progressive-linetracer/pkg/scene"
)

// FrameUpdate represents a single resolved frame sent via SSE
type FrameUpdate struct {
	Frame       int        `json:"frame"`
	TotalFrames int        `json:"totalFrames"`
	ImageData   string     `json:"imageData"` // Base64 encoded PNG
	Stats       FrameStats `json:"stats"`
	IsComplete  bool       `json:"isComplete"`
	ElapsedMs   int64      `json:"elapsedMs"`
	FrameMs     int64      `json:"frameMs"`
}

// FrameStats represents per-frame ray statistics
type FrameStats struct {
	Cast          int     `json:"cast"`
	Lit           int     `json:"lit"`
	Miss          int     `json:"miss"`
	Absorbed      int     `json:"absorbed"`
	Exhausted     int     `json:"exhausted"`
	Clipped       int     `json:"clipped"`
	FilledPixels  int     `json:"filledPixels"`
	TotalPixels   int     `json:"totalPixels"`
	LitRatio      float64 `json:"litRatio"`
	Coverage      float64 `json:"coverage"`
	MeanLuminance float64 `json:"meanLuminance"`
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "frame", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// RenderingPipeline contains the configured scene and renderer
type RenderingPipeline struct {
	Scene    *scene.Scene
	Renderer *renderer.Renderer
}

// handleRender handles progressive rendering with per-frame streaming via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.setSSEHeaders(w)

	ctx := r.Context()

	// Single writer goroutine owns the response
	sseEventChan := make(chan SSEEvent, 100)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeSSEEvents(w, ctx, sseEventChan)
	}()
	defer func() {
		close(sseEventChan)
		<-writerDone
	}()

	req, err := s.parseRenderRequest(r)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	// Console streaming stops before the event channel closes
	consoleChan, webLogger := s.setupConsoleLogging()
	streamCtx, stopStream := context.WithCancel(ctx)
	var streamWG sync.WaitGroup
	streamWG.Add(1)
	go func() {
		defer streamWG.Done()
		s.streamConsoleMessages(streamCtx, consoleChan, sseEventChan)
	}()
	defer func() {
		stopStream()
		streamWG.Wait()
	}()

	pipeline, err := s.setupRenderingPipeline(req, webLogger)
	if err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	startTime := time.Now()
	frameChan, errChan := pipeline.Renderer.RenderProgressive(ctx)
	s.handleRenderingEvents(ctx, sseEventChan, frameChan, errChan, req, startTime)
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// setupConsoleLogging creates console channel and web logger for a render
func (s *Server) setupConsoleLogging() (chan ConsoleMessage, core.Logger) {
	consoleChan := make(chan ConsoleMessage, 50)
	renderID := fmt.Sprintf("render-%d", time.Now().UnixNano())
	webLogger := NewWebLogger(renderID, consoleChan)
	return consoleChan, webLogger
}

// writeSSEEvents writes all SSE events until the channel is closed
func (s *Server) writeSSEEvents(w http.ResponseWriter, ctx context.Context, sseEventChan <-chan SSEEvent) {
	flusher, _ := w.(http.Flusher)
	for event := range sseEventChan {
		// Keep draining after the client disconnects so senders never block
		if ctx.Err() != nil {
			continue
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data); err != nil {
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// streamConsoleMessages forwards console messages as SSE events
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan <-chan ConsoleMessage, sseEventChan chan<- SSEEvent) {
	for {
		select {
		case consoleMsg := <-consoleChan:
			data, err := json.Marshal(consoleMsg)
			if err != nil {
				log.Printf("Error marshaling console message: %v", err)
				continue
			}

			select {
			case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
			case <-ctx.Done():
				return
			default:
				// Channel full, skip message to avoid blocking
			}

		case <-ctx.Done():
			return
		}
	}
}

// setupRenderingPipeline creates the scene and renderer for a request
func (s *Server) setupRenderingPipeline(req *RenderRequest, logger core.Logger) (*RenderingPipeline, error) {
	sceneObj, err := s.createScene(req.Scene)
	if err != nil {
		return nil, err
	}

	size := sceneObj.Size
	if req.Width > 0 {
		size.Width = req.Width
	}
	if req.Height > 0 {
		size.Height = req.Height
	}

	dispatch := sceneObj.Dispatch
	if req.Samples > 0 {
		dispatch.Samples = req.Samples
	}
	if req.SpanDeg > 0 {
		dispatch.AngularSpan = req.SpanDeg * math.Pi / 180
	}

	config := renderer.DefaultProgressiveConfig()
	config.Frames = req.Frames
	config.Reset = req.Reset
	config.Overlay = req.Overlay

	r, err := renderer.NewRenderer(sceneObj, size, dispatch, config, logger)
	if err != nil {
		return nil, err
	}
	return &RenderingPipeline{Scene: sceneObj, Renderer: r}, nil
}

// handleRenderingEvents streams frames until the renderer finishes
func (s *Server) handleRenderingEvents(ctx context.Context, sseEventChan chan<- SSEEvent,
	frameChan <-chan renderer.FrameResult, errChan <-chan error, req *RenderRequest, startTime time.Time) {

	for result := range frameChan {
		s.handleFrameComplete(ctx, sseEventChan, result, req, startTime)
	}

	if err := <-errChan; err != nil {
		if ctx.Err() != nil {
			// Client disconnected
			return
		}
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: "Rendering completed"}:
	case <-ctx.Done():
	}
}

// handleFrameComplete encodes and sends one frame
func (s *Server) handleFrameComplete(ctx context.Context, sseEventChan chan<- SSEEvent, result renderer.FrameResult, req *RenderRequest, startTime time.Time) {
	if ctx.Err() != nil {
		return
	}

	imageData, err := s.imageToBase64PNG(result.Image)
	if err != nil {
		log.Printf("Error encoding frame %d: %v", result.Frame, err)
		return
	}

	stats := result.Stats
	update := FrameUpdate{
		Frame:       result.Frame,
		TotalFrames: req.Frames,
		ImageData:   imageData,
		Stats: FrameStats{
			Cast:          stats.Cast,
			Lit:           stats.Lit,
			Miss:          stats.Miss,
			Absorbed:      stats.Absorbed,
			Exhausted:     stats.Exhausted,
			Clipped:       stats.Clipped,
			FilledPixels:  stats.FilledPixels,
			TotalPixels:   stats.TotalPixels,
			LitRatio:      stats.LitRatio(),
			Coverage:      stats.Coverage(),
			MeanLuminance: stats.MeanLuminance,
		},
		IsComplete: result.IsLast,
		ElapsedMs:  time.Since(startTime).Milliseconds(),
		FrameMs:    result.Duration.Milliseconds(),
	}

	data, err := json.Marshal(update)
	if err != nil {
		log.Printf("Error marshaling frame update: %v", err)
		return
	}

	select {
	case sseEventChan <- SSEEvent{Type: "frame", Data: string(data)}:
	case <-ctx.Done():
	}
}

// imageToBase64PNG converts an image to base64-encoded PNG
func (s *Server) imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan<- SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}
