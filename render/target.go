// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"errors"
	"image"
	"image/color"

	"github.com/gogpu/gputypes"
)

// ErrUnsupportedFormat is returned when a target or buffer format cannot be
// handled by the software path.
var ErrUnsupportedFormat = errors.New("render: unsupported texture format")

// SupportedFormat reports whether f can be sampled or written by the
// software rasterizer. TextureFormatUndefined is accepted and means RGBA.
func SupportedFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatUndefined,
		gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureFormatBGRA8Unorm:
		return true
	}
	return false
}

// PixmapTarget is the image an output or capture is composited into.
type PixmapTarget struct {
	img    *image.RGBA
	format gputypes.TextureFormat
}

// NewPixmapTarget allocates an RGBA target of the given size.
func NewPixmapTarget(width, height int) *PixmapTarget {
	return &PixmapTarget{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		format: gputypes.TextureFormatRGBA8Unorm,
	}
}

// NewPixmapTargetFromImage wraps img without copying it.
func NewPixmapTargetFromImage(img *image.RGBA) *PixmapTarget {
	return &PixmapTarget{img: img, format: gputypes.TextureFormatRGBA8Unorm}
}

// Width returns the target width in pixels.
func (t *PixmapTarget) Width() int {
	return t.img.Bounds().Dx()
}

// Height returns the target height in pixels.
func (t *PixmapTarget) Height() int {
	return t.img.Bounds().Dy()
}

// Format returns the pixel format (RGBA8).
func (t *PixmapTarget) Format() gputypes.TextureFormat {
	return t.format
}

// Stride returns the number of bytes per row.
func (t *PixmapTarget) Stride() int {
	return t.img.Stride
}

// Image returns the underlying *image.RGBA.
// The returned image shares memory with the target.
func (t *PixmapTarget) Image() *image.RGBA {
	return t.img
}

// Clear fills the entire target with the given color.
func (t *PixmapTarget) Clear(c color.Color) {
	rgba := color.RGBAModel.Convert(c).(color.RGBA)

	b := t.img.Bounds()
	if b.Empty() {
		return
	}
	row := t.img.Pix[:4*b.Dx()]
	for i := 0; i < len(row); i += 4 {
		row[i], row[i+1], row[i+2], row[i+3] = rgba.R, rgba.G, rgba.B, rgba.A
	}
	for y := 1; y < b.Dy(); y++ {
		copy(t.img.Pix[y*t.img.Stride:], row)
	}
}

// GetPixel returns the color at the given coordinates.
func (t *PixmapTarget) GetPixel(x, y int) color.RGBA {
	return t.img.RGBAAt(x, y)
}
