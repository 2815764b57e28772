package renderer

import (
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/df07/go-progressive-linetracer/pkg/geometry"
)

// OverlayOptions configures the debug line pass
type OverlayOptions struct {
	LineWidth   float64 // Stroke width in pixels
	ShowWatcher bool    // Draw a marker at the watcher position
	HUD         string  // Text drawn in the top-left corner, empty for none
	HUDSize     float64 // Font size in points
}

// DefaultOverlayOptions returns thin lines, a watcher marker and no HUD
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		LineWidth:   1,
		ShowWatcher: true,
		HUDSize:     12,
	}
}

var (
	hudFontOnce   sync.Once
	hudFontSource *text.FontSource
	hudFontErr    error
)

func hudFont() (*text.FontSource, error) {
	hudFontOnce.Do(func() {
		hudFontSource, hudFontErr = text.NewFontSource(goregular.TTF)
	})
	return hudFontSource, hudFontErr
}

// DrawOverlay rasterizes the raw segments over base and returns a new image.
// Segments are projected with the same view as the ray caster.
func DrawOverlay(base image.Image, view geometry.View, segments []geometry.LineSegment, opts OverlayOptions) (*image.RGBA, error) {
	dc := gg.NewContextForImage(base)
	defer dc.Close()

	lineWidth := opts.LineWidth
	if lineWidth <= 0 {
		lineWidth = 1
	}
	dc.SetLineWidth(lineWidth)

	for i, seg := range segments {
		a := view.ToScreen(seg.Start)
		b := view.ToScreen(seg.End)
		c := seg.Color.Clamp(0, 1)
		dc.SetRGB(c.X, c.Y, c.Z)
		dc.DrawLine(a.X, a.Y, b.X, b.Y)
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("stroke segment %d: %w", i, err)
		}
	}

	if opts.ShowWatcher {
		p := view.ToScreen(view.Watcher.Position)
		dc.SetRGBA(1, 1, 1, 0.8)
		dc.DrawCircle(p.X, p.Y, 3*lineWidth)
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("fill watcher marker: %w", err)
		}
	}

	if opts.HUD != "" {
		source, err := hudFont()
		if err != nil {
			return nil, fmt.Errorf("load HUD font: %w", err)
		}
		size := opts.HUDSize
		if size <= 0 {
			size = 12
		}
		dc.SetFont(source.Face(size))
		dc.SetRGB(1, 1, 1)
		dc.DrawString(opts.HUD, 6, 6+size)
	}

	return toRGBA(dc.Image()), nil
}

// Upscale enlarges an image by an integer factor with nearest-neighbour sampling
func Upscale(img *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
