// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"image"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/gputypes"
)

// SoftwareRasterizer composites draw lists on the CPU.
//
// It is stateless and may be shared between goroutines.
type SoftwareRasterizer struct{}

// NewSoftwareRasterizer creates a software rasterizer.
func NewSoftwareRasterizer() *SoftwareRasterizer {
	return &SoftwareRasterizer{}
}

// Composite allocates a target of the list's size and paints into it.
func (r *SoftwareRasterizer) Composite(dl *DrawList) (*image.RGBA, error) {
	if dl.Width < 0 || dl.Height < 0 {
		return nil, fmt.Errorf("render: negative output size %dx%d", dl.Width, dl.Height)
	}
	target := NewPixmapTarget(dl.Width, dl.Height)
	if err := r.CompositeTo(target, dl); err != nil {
		return nil, err
	}
	return target.Image(), nil
}

// CompositeTo paints dl into an existing target, clearing it to the list's
// background first. Only RGBA8 targets are supported.
func (r *SoftwareRasterizer) CompositeTo(target *PixmapTarget, dl *DrawList) error {
	if f := target.Format(); f != gputypes.TextureFormatRGBA8Unorm {
		return fmt.Errorf("%w: target %v", ErrUnsupportedFormat, f)
	}
	target.Clear(dl.Background.Color())

	img := target.Image()
	full := geom.RectFromImage(img.Bounds())
	for i := range dl.Entries {
		e := &dl.Entries[i]
		if !SupportedFormat(e.Format) {
			return fmt.Errorf("%w: layer %d (%s) %v", ErrUnsupportedFormat, e.Layer, e.Name, e.Format)
		}
		drawEntry(img, full, e)
	}
	return nil
}

func drawEntry(img *image.RGBA, full geom.Rect, e *DrawEntry) {
	if e.Alpha <= 0 || e.Bounds.Empty() {
		return
	}
	toContent, ok := e.ToOutput.Invert()
	if !ok {
		return
	}

	area := e.Bounds.Transform(e.ToOutput).Intersect(full)
	for _, c := range e.Clips {
		cb, ok := c.OutputBounds()
		if !ok {
			return
		}
		area = area.Intersect(cb)
	}
	if area.Empty() {
		return
	}

	solid := e.Color.Premultiply()
	src := pixel{r: solid.R * 255, g: solid.G * 255, b: solid.B * 255, a: solid.A * 255}
	swap := e.Format == gputypes.TextureFormatBGRA8Unorm

	px := area.PixelBounds().Intersect(img.Bounds())
	for y := px.Min.Y; y < px.Max.Y; y++ {
		for x := px.Min.X; x < px.Max.X; x++ {
			p := geom.Pt(float64(x)+0.5, float64(y)+0.5)
			if !passes(e.Clips, p) {
				continue
			}
			cp := toContent.TransformPoint(p)
			if !e.Bounds.Contains(cp) {
				continue
			}
			if e.Image != nil {
				var ok bool
				src, ok = sample(e.Image, cp, swap)
				if !ok {
					continue
				}
			}
			off := img.PixOffset(x, y)
			d := [4]uint8{img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3]}
			out := blendSourceOver(src, e.Alpha, d)
			copy(img.Pix[off:off+4], out[:])
		}
	}
}

func passes(clips []geom.Clip, p geom.Point) bool {
	for _, c := range clips {
		if !c.Contains(p) {
			return false
		}
	}
	return true
}

// sample fetches the nearest texel of src for content point p.
// Content coordinates are relative to the image's Min corner.
func sample(src *image.RGBA, p geom.Point, swap bool) (pixel, bool) {
	b := src.Bounds()
	x := b.Min.X + floor(p.X)
	y := b.Min.Y + floor(p.Y)
	if x < b.Min.X || y < b.Min.Y || x >= b.Max.X || y >= b.Max.Y {
		return pixel{}, false
	}
	off := src.PixOffset(x, y)
	s := src.Pix[off : off+4 : off+4]
	if swap {
		return pixel{r: float64(s[2]), g: float64(s[1]), b: float64(s[0]), a: float64(s[3])}, true
	}
	return pixel{r: float64(s[0]), g: float64(s[1]), b: float64(s[2]), a: float64(s[3])}, true
}

func floor(v float64) int {
	i := int(v)
	if v < float64(i) {
		i--
	}
	return i
}

// Ensure SoftwareRasterizer implements Rasterizer.
var _ Rasterizer = (*SoftwareRasterizer)(nil)
