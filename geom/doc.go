// Package geom provides the small geometry vocabulary shared by the
// compositor packages: affine matrices, points, sizes and float rectangles.
//
// # Coordinate System
//
// Uses standard display coordinates:
//   - Origin (0,0) at top-left of the output
//   - X increases right
//   - Y increases down
//
// Pixel (x, y) covers the half-open square [x, x+1) x [y, y+1); its centre is
// (x+0.5, y+0.5). Rasterization samples at pixel centres, so a layer placed at
// a sub-pixel position covers the pixels whose centres fall inside it, which is
// the same as rounding the position to the nearest integer.
package geom
