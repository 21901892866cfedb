// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"image"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/gputypes"
)

// Rasterizer turns an ordered draw list into an image.
//
// Implementations must be safe to call from the compositor's commit loop
// while captures run on other goroutines; SoftwareRasterizer keeps no state.
type Rasterizer interface {
	Composite(dl *DrawList) (*image.RGBA, error)
}

// DrawList is a back-to-front sequence of entries painted over a background.
type DrawList struct {
	Width, Height int
	Background    RGBA
	Entries       []DrawEntry
}

// DrawEntry is one layer's contribution to a DrawList.
type DrawEntry struct {
	// Layer and Name identify the source layer, for diagnostics only.
	Layer uint32
	Name  string

	// ToOutput maps content space to output space.
	ToOutput geom.Matrix

	// Bounds is the drawable area in content space.
	Bounds geom.Rect

	// Clips are tested in output space; a pixel must pass every clip.
	Clips []geom.Clip

	// Alpha is the effective opacity in [0, 1].
	Alpha float64

	// Image holds premultiplied content. A nil Image paints Color instead.
	Image  *image.RGBA
	Format gputypes.TextureFormat
	Color  RGBA
}

// Add appends an entry.
func (dl *DrawList) Add(e DrawEntry) {
	dl.Entries = append(dl.Entries, e)
}
