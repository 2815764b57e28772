package renderer

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/df07/go-progressive-linetracer/pkg/core"
)

// Resolve filter weights
const (
	neighbourWeight = 0.6
	centreWeight    = 0.4
)

// Resolve smooths the accumulation buffer into a displayable image.
// Each output pixel is 0.6 * mean(8 neighbours) + 0.4 * centre, with
// coordinates clamped at the image edge. The buffer is only read.
func Resolve(buf *AccumulationBuffer) *image.RGBA {
	size := buf.Size()
	if !size.Valid() {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	img := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))

	bands := min(runtime.NumCPU(), size.Height)
	rowsPerBand := (size.Height + bands - 1) / bands

	var wg sync.WaitGroup
	for y0 := 0; y0 < size.Height; y0 += rowsPerBand {
		y1 := min(y0+rowsPerBand, size.Height)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			for y := y0; y < y1; y++ {
				for x := 0; x < size.Width; x++ {
					img.SetRGBA(x, y, vec3ToColor(ResolvePixel(buf, x, y)))
				}
			}
		}(y0, y1)
	}
	wg.Wait()

	return img
}

// ResolvePixel applies the 3x3 reconstruction filter at (x, y)
func ResolvePixel(buf *AccumulationBuffer, x, y int) core.Vec3 {
	var neighbours core.Vec3
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			neighbours = neighbours.Add(buf.colorAt(x+dx, y+dy))
		}
	}
	return neighbours.Multiply(neighbourWeight / 8).Add(buf.colorAt(x, y).Multiply(centreWeight))
}

// vec3ToColor converts a unit-range colour to opaque 8-bit RGBA
func vec3ToColor(c core.Vec3) color.RGBA {
	c = c.Clamp(0, 1)
	return color.RGBA{
		R: uint8(math.Floor(c.X*255 + 0.5)),
		G: uint8(math.Floor(c.Y*255 + 0.5)),
		B: uint8(math.Floor(c.Z*255 + 0.5)),
		A: 255,
	}
}
