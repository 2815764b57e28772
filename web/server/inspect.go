package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/integrator"
	"github.com/df07/go-progressive-linetracer/pkg/scene"
)

// InspectResponse represents the JSON response for segment inspection
type InspectResponse struct {
	Hit          bool                   `json:"hit"`
	World        [2]float64             `json:"world"`     // World point under the pixel
	Direction    [2]float64             `json:"direction"` // Unit direction from the watcher
	Point        [2]float64             `json:"point"`
	Normal       [2]float64             `json:"normal"`
	Distance     float64                `json:"distance"`
	SegmentIndex int                    `json:"segmentIndex"`
	SegmentType  string                 `json:"segmentType"` // "light" or "mirror"
	Properties   map[string]interface{} `json:"properties,omitempty"`
	Path         *PathInfo              `json:"path,omitempty"`
}

// PathInfo describes the path a single sample takes along the inspection ray
type PathInfo struct {
	State    string     `json:"state"`
	Bounces  int        `json:"bounces"`
	Absorbed bool       `json:"absorbed"`
	Color    [3]float64 `json:"color"`
}

// InspectResult contains the nearest hit along the watcher ray through a pixel
type InspectResult struct {
	Hit   bool
	World core.Vec2
	Ray   geometry.Ray
	Near  geometry.Hit
	Path  integrator.PathResult
}

// inspectPixel casts a ray from the watcher toward the centre of a pixel
func inspectPixel(sceneObj *scene.Scene, size geometry.ImageSize, pixelX, pixelY int) InspectResult {
	view := geometry.View{Watcher: sceneObj.Watcher, Size: size, Scale: sceneObj.Dispatch.ViewScale}
	world := view.ToWorld(core.NewVec2(float64(pixelX)+0.5, float64(pixelY)+0.5))

	toPoint := world.Subtract(sceneObj.Watcher.Position)
	if toPoint.Length() < 1e-12 {
		return InspectResult{World: world}
	}
	ray := geometry.NewRay(sceneObj.Watcher.Position, toPoint.Normalize())

	dispatch := sceneObj.Dispatch
	near, ok := geometry.Intersect(ray, sceneObj.Segments, dispatch.HitEpsilon)
	if !ok {
		return InspectResult{World: world, Ray: ray}
	}

	// Deterministic path of a sample with ID 0 along this ray
	tracer := integrator.NewPathTracingIntegrator(integrator.Config{
		MaxBounces: dispatch.MaxBounces,
		HitEpsilon: dispatch.HitEpsilon,
	})

	return InspectResult{
		Hit:   true,
		World: world,
		Ray:   ray,
		Near:  near,
		Path:  tracer.Trace(ray, sceneObj.Segments, 0),
	}
}

// extractSegmentInfo extracts the look of a segment
func extractSegmentInfo(seg geometry.LineSegment) (string, map[string]interface{}) {
	properties := map[string]interface{}{
		"start":     [2]float64{seg.Start.X, seg.Start.Y},
		"end":       [2]float64{seg.End.X, seg.End.Y},
		"length":    seg.Length(),
		"albedo":    [3]float64{seg.Color.X, seg.Color.Y, seg.Color.Z},
		"color":     hexColor(seg.Color),
		"roughness": seg.Roughness,
		"seed":      seg.Seed,
	}
	if seg.IsLight() {
		properties["light"] = seg.Light
		emission := seg.Emission()
		properties["emission"] = [3]float64{emission.X, emission.Y, emission.Z}
		return "light", properties
	}
	return "mirror", properties
}

func hexColor(c core.Vec3) string {
	c = c.Clamp(0, 1)
	return fmt.Sprintf("#%02x%02x%02x", int(c.X*255), int(c.Y*255), int(c.Z*255))
}

// handleInspect handles ray casting inspection requests
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	inspectReq := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, inspectReq); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid scene parameters: " + err.Error()})
		return
	}

	pixelX, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid x coordinate"})
		return
	}
	pixelY, err := strconv.Atoi(r.URL.Query().Get("y"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid y coordinate"})
		return
	}

	sceneObj, err := s.createScene(inspectReq.Scene)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	size := sceneObj.Size
	if inspectReq.Width > 0 {
		size.Width = inspectReq.Width
	}
	if inspectReq.Height > 0 {
		size.Height = inspectReq.Height
	}
	if pixelX < 0 || pixelX >= size.Width || pixelY < 0 || pixelY >= size.Height {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Pixel coordinates out of bounds"})
		return
	}

	result := inspectPixel(sceneObj, size, pixelX, pixelY)
	response := InspectResponse{
		Hit:          result.Hit,
		World:        [2]float64{result.World.X, result.World.Y},
		Direction:    [2]float64{result.Ray.Direction.X, result.Ray.Direction.Y},
		SegmentIndex: -1,
	}
	if !result.Hit {
		writeJSON(w, http.StatusOK, response)
		return
	}

	seg := result.Near.Segment
	tangent := seg.Tangent()
	normal := core.NewVec2(-tangent.Y, tangent.X)
	// Face the normal toward the watcher
	if normal.Dot(result.Ray.Direction) > 0 {
		normal = normal.Negate()
	}

	response.Point = [2]float64{result.Near.Point.X, result.Near.Point.Y}
	response.Normal = [2]float64{normal.X, normal.Y}
	response.Distance = result.Near.Distance
	response.SegmentIndex = result.Near.Index
	response.SegmentType, response.Properties = extractSegmentInfo(seg)

	path := result.Path
	response.Path = &PathInfo{
		State:    path.State.String(),
		Bounces:  path.Bounces,
		Absorbed: path.Absorbed,
		Color:    [3]float64{path.Color.X, path.Color.Y, path.Color.Z},
	}

	writeJSON(w, http.StatusOK, response)
}
