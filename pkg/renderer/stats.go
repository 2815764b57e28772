package renderer

import (
	"image"

	"github.com/df07/go-progressive-linetracer/pkg/core"
)

// RenderStats contains statistics about a dispatch or a whole frame
type RenderStats struct {
	Cast         int // Primary rays traced
	Lit          int // Lit samples written to the buffer
	Miss         int // Paths that left the scene
	Absorbed     int // Paths rejected by the reflection sampler
	Exhausted    int // Paths that ran out of bounce budget
	Clipped      int // Lit samples whose draw position fell off screen
	FilledPixels int // Pixels holding at least one sample, set after resolve
	TotalPixels  int // Pixels in the image, set after resolve

	MeanLuminance float64 // Average luminance of the resolved image
}

// Add merges the counters of another dispatch chunk
func (s *RenderStats) Add(other RenderStats) {
	s.Cast += other.Cast
	s.Lit += other.Lit
	s.Miss += other.Miss
	s.Absorbed += other.Absorbed
	s.Exhausted += other.Exhausted
	s.Clipped += other.Clipped
}

// LitRatio returns the fraction of primary rays that were drawn
func (s RenderStats) LitRatio() float64 {
	if s.Cast == 0 {
		return 0
	}
	return float64(s.Lit) / float64(s.Cast)
}

// Coverage returns the fraction of pixels holding a sample
func (s RenderStats) Coverage() float64 {
	if s.TotalPixels == 0 {
		return 0
	}
	return float64(s.FilledPixels) / float64(s.TotalPixels)
}

// CalculateAverageLuminance returns the mean perceptual luminance of an image in [0,1]
func CalculateAverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	if bounds.Empty() {
		return 0
	}

	total := 0.0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			total += core.NewVec3(float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff).Luminance()
		}
	}
	return total / float64(bounds.Dx()*bounds.Dy())
}
