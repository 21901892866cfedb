// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import "math"

// pixel is a premultiplied color with components in [0, 255].
type pixel struct {
	r, g, b, a float64
}

// blendSourceOver composites src over dst with an extra opacity factor:
//
//	Result = S*alpha + D*(1 - Sa*alpha)
//
// Both src and dst are premultiplied. Working in float and rounding once
// keeps repeated translucent layers from drifting by truncation.
func blendSourceOver(src pixel, alpha float64, dst [4]uint8) [4]uint8 {
	inv := 1 - (src.a/255)*alpha
	return [4]uint8{
		round8(src.r*alpha + float64(dst[0])*inv),
		round8(src.g*alpha + float64(dst[1])*inv),
		round8(src.b*alpha + float64(dst[2])*inv),
		round8(src.a*alpha + float64(dst[3])*inv),
	}
}

func round8(x float64) uint8 {
	return uint8(clamp255(math.Round(x)))
}
