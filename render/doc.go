// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render turns a resolved draw list into pixels.
//
// The compositor core never rasterizes by itself. It hands an ordered,
// back-to-front DrawList to a Rasterizer and treats the returned image as
// opaque output. This package defines that contract and ships a software
// implementation that is used for captures and tests.
//
// # Core Types
//
//   - DrawList: output size, background and the ordered DrawEntry values
//   - DrawEntry: one layer's content, its content-to-output transform,
//     the clips inherited from its ancestors and its effective alpha
//   - Rasterizer: Composite(*DrawList) -> *image.RGBA
//   - SoftwareRasterizer: per-pixel CPU implementation of Rasterizer
//   - PixmapTarget: CPU-backed *image.RGBA target
//
// # Sampling
//
// Every output pixel is sampled at its centre (x+0.5, y+0.5). A layer placed
// at a fractional position therefore lands on the nearest whole pixel, and
// content is fetched with nearest-neighbour lookup.
//
// # Blending
//
// Entries are composited with premultiplied source-over. The effective alpha
// of an entry scales the source before blending, so a half transparent
// opaque layer contributes half its color.
package render
