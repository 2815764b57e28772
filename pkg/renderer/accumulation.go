package renderer

import (
	"math"
	"sync/atomic"

	"github.com/df07/go-progressive-linetracer/pkg/core"
	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// UpdatePolicy selects how concurrent writers to the same pixel are reconciled
type UpdatePolicy int

const (
	// CompareAndSwap retries the read-modify-write until no other writer interfered
	CompareAndSwap UpdatePolicy = iota
	// Optimistic loads and stores without retry; concurrent updates may be lost
	Optimistic
)

// CountOverflow selects what happens when a pixel's 8-bit sample count is full
type CountOverflow int

const (
	// Wrap lets the count roll over to 0, restarting the average
	Wrap CountOverflow = iota
	// Saturate pins the count at 255, turning the average into a moving average
	Saturate
)

// PixelSample is a decoded accumulation entry
type PixelSample struct {
	Color core.Vec3 // Running average, unit range per channel
	Count uint8     // Samples folded into the average
}

// EncodePixel packs a sample into a 32-bit word: R, G, B in bytes 0-2, count in byte 3
func EncodePixel(s PixelSample) uint32 {
	return packUnorm(s.Color.X) |
		packUnorm(s.Color.Y)<<8 |
		packUnorm(s.Color.Z)<<16 |
		uint32(s.Count)<<24
}

// DecodePixel unpacks a 32-bit accumulation word
func DecodePixel(w uint32) PixelSample {
	return PixelSample{
		Color: core.Vec3{
			X: float64(w&0xff) / 255,
			Y: float64((w>>8)&0xff) / 255,
			Z: float64((w>>16)&0xff) / 255,
		},
		Count: uint8(w >> 24),
	}
}

// packUnorm clamps to [0,1] and rounds to the nearest 8-bit step
func packUnorm(v float64) uint32 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint32(math.Floor(v*255 + 0.5))
}

// accumulate folds one sample into an encoded pixel
func accumulate(word uint32, sample core.Vec3, overflow CountOverflow) uint32 {
	p := DecodePixel(word)
	n := float64(p.Count)
	avg := p.Color.Multiply(n).Add(sample).Multiply(1 / (n + 1))

	count := p.Count + 1
	if overflow == Saturate && p.Count == math.MaxUint8 {
		count = math.MaxUint8
	}
	return EncodePixel(PixelSample{Color: avg, Count: count})
}

// AccumulationBuffer is the shared per-pixel running average written by the ray caster
type AccumulationBuffer struct {
	size     geometry.ImageSize
	pixels   []atomic.Uint32
	update   UpdatePolicy
	overflow CountOverflow
}

// NewAccumulationBuffer allocates an empty buffer for the given image size
func NewAccumulationBuffer(size geometry.ImageSize, update UpdatePolicy, overflow CountOverflow) *AccumulationBuffer {
	n := 0
	if size.Valid() {
		n = size.Pixels()
	}
	return &AccumulationBuffer{
		size:     size,
		pixels:   make([]atomic.Uint32, n),
		update:   update,
		overflow: overflow,
	}
}

// Size returns the buffer dimensions
func (b *AccumulationBuffer) Size() geometry.ImageSize {
	return b.size
}

func (b *AccumulationBuffer) index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= b.size.Width || y >= b.size.Height {
		return 0, false
	}
	return y*b.size.Width + x, true
}

// Add folds a colour sample into pixel (x, y). It is safe for concurrent use.
// Returns false when the pixel lies outside the buffer.
func (b *AccumulationBuffer) Add(x, y int, sample core.Vec3) bool {
	i, ok := b.index(x, y)
	if !ok {
		return false
	}
	px := &b.pixels[i]

	if b.update == Optimistic {
		px.Store(accumulate(px.Load(), sample, b.overflow))
		return true
	}

	for {
		old := px.Load()
		if px.CompareAndSwap(old, accumulate(old, sample, b.overflow)) {
			return true
		}
	}
}

// At returns the decoded sample at (x, y). Out-of-range reads return an empty sample.
func (b *AccumulationBuffer) At(x, y int) PixelSample {
	i, ok := b.index(x, y)
	if !ok {
		return PixelSample{}
	}
	return DecodePixel(b.pixels[i].Load())
}

// Word returns the raw packed word at (x, y)
func (b *AccumulationBuffer) Word(x, y int) uint32 {
	i, ok := b.index(x, y)
	if !ok {
		return 0
	}
	return b.pixels[i].Load()
}

// colorAt clamps coordinates to the buffer edge and returns the decoded colour
func (b *AccumulationBuffer) colorAt(x, y int) core.Vec3 {
	x = min(max(x, 0), b.size.Width-1)
	y = min(max(y, 0), b.size.Height-1)
	return DecodePixel(b.pixels[y*b.size.Width+x].Load()).Color
}

// Clear resets every pixel to the empty state.
// It must not run concurrently with a dispatch.
func (b *AccumulationBuffer) Clear() {
	for i := range b.pixels {
		b.pixels[i].Store(0)
	}
}

// FilledPixels counts pixels that have received at least one sample since the last wrap
func (b *AccumulationBuffer) FilledPixels() int {
	filled := 0
	for i := range b.pixels {
		if b.pixels[i].Load()>>24 != 0 {
			filled++
		}
	}
	return filled
}
