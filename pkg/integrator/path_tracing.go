package integrator

import (
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
	"github.com/df07/go-progressive-linetracer/pkg/material"
)

// DefaultMaxBounces is the bounce budget after the first hit
const DefaultMaxBounces = 15

// Seed mixing constants (golden ratio and plastic number conjugates)
const (
	sampleSeedStride = 0.6180339887498949
	bounceSeedStride = 0.7548776662466927
)

// Config contains path tracing configuration
type Config struct {
	MaxBounces int     // Reflection evaluations allowed after the first hit
	HitEpsilon float64 // Minimum hit distance
}

// DefaultConfig returns the standard bounce budget and epsilon
func DefaultConfig() Config {
	return Config{
		MaxBounces: DefaultMaxBounces,
		HitEpsilon: geometry.DefaultHitEpsilon,
	}
}

// PathTracingIntegrator follows mirror-like bounces until a light, a miss or the budget
type PathTracingIntegrator struct {
	config Config
}

// NewPathTracingIntegrator creates a new path tracing integrator
func NewPathTracingIntegrator(config Config) *PathTracingIntegrator {
	if config.MaxBounces < 0 {
		config.MaxBounces = 0
	}
	return &PathTracingIntegrator{config: config}
}

// PathSeed derives the reflection hash input for one bounce of one sample
func PathSeed(segmentSeed float64, sampleID uint64, bounce int) float64 {
	return segmentSeed + float64(sampleID)*sampleSeedStride + float64(bounce)*bounceSeedStride
}

// Trace implements Integrator.
// The first hit fixes the draw position; the light path is then followed from
// the same primary ray for at most MaxBounces further intersection tests.
func (pt *PathTracingIntegrator) Trace(ray geometry.Ray, segments []geometry.LineSegment, sampleID uint64) PathResult {
	hit, ok := geometry.Intersect(ray, segments, pt.config.HitEpsilon)
	if !ok {
		return PathResult{State: Miss}
	}

	result := PathResult{
		DrawPosition: hit.Point,
		HasFirstHit:  true,
	}

	for bounce := 0; ; bounce++ {
		result.Bounces = bounce
		seg := hit.Segment

		if seg.IsLight() {
			result.State = Lit
			result.Color = seg.Emission().MultiplyVec(ray.Throughput)
			return result
		}

		if bounce == pt.config.MaxBounces {
			result.State = Exhausted
			return result
		}

		direction, scattered := material.Scatter(seg, ray.Direction, PathSeed(seg.Seed, sampleID, bounce))
		if !scattered {
			result.State = Miss
			result.Absorbed = true
			return result
		}

		ray = geometry.Ray{
			Origin:     hit.Point,
			Direction:  direction,
			Throughput: ray.Throughput.MultiplyVec(seg.Color),
		}

		hit, ok = geometry.Intersect(ray, segments, pt.config.HitEpsilon)
		if !ok {
			result.State = Miss
			result.Bounces = bounce + 1
			return result
		}
	}
}
