package integrator

import (
	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// PathState is the terminal state of a traced path
type PathState int

const (
	// Miss means the path left the scene or was absorbed by a reflection
	Miss PathState = iota
	// Lit means the path reached an emissive segment
	Lit
	// Exhausted means the bounce budget ran out before the path resolved
	Exhausted
)

// String returns a readable name for the state
func (s PathState) String() string {
	switch s {
	case Lit:
		return "lit"
	case Exhausted:
		return "exhausted"
	default:
		return "miss"
	}
}

// PathResult is the outcome of tracing one primary ray
type PathResult struct {
	State        PathState
	Color        core.Vec3 // Light carried back to the watcher, set when Lit
	DrawPosition core.Vec2 // First hit point, where the sample is drawn
	HasFirstHit  bool      // The primary ray struck something
	Absorbed     bool      // A Miss caused by rejection sampling
	Bounces      int       // Reflection evaluations after the first hit
}

// Integrator defines the interface for light transport algorithms
type Integrator interface {
	// Trace follows a primary ray through the segment set.
	// sampleID decorrelates the reflection hash between samples.
	Trace(ray geometry.Ray, segments []geometry.LineSegment, sampleID uint64) PathResult
}
