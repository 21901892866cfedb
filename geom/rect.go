package geom

import (
	"image"
	"math"
)

// Rect is an axis-aligned rectangle with float coordinates.
// It is half-open: it contains points with Min <= p < Max.
type Rect struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// RectFromImage converts an integer rectangle.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{
		MinX: float64(r.Min.X), MinY: float64(r.Min.Y),
		MaxX: float64(r.Max.X), MaxY: float64(r.Max.Y),
	}
}

// RectFromSize returns the rectangle (0, 0, w, h).
func RectFromSize(s Size) Rect {
	return Rect{MaxX: float64(s.W), MaxY: float64(s.H)}
}

// Empty reports whether the rectangle contains no points.
func (r Rect) Empty() bool {
	return r.MinX >= r.MaxX || r.MinY >= r.MaxY
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X < r.MaxX && p.Y >= r.MinY && p.Y < r.MaxY
}

// Intersect returns the largest rectangle contained by both r and s.
// The result may be empty.
func (r Rect) Intersect(s Rect) Rect {
	return Rect{
		MinX: math.Max(r.MinX, s.MinX),
		MinY: math.Max(r.MinY, s.MinY),
		MaxX: math.Min(r.MaxX, s.MaxX),
		MaxY: math.Min(r.MaxY, s.MaxY),
	}
}

// Transform returns the axis-aligned bounding box of r after m is applied.
func (r Rect) Transform(m Matrix) Rect {
	corners := [4]Point{
		m.TransformPoint(Pt(r.MinX, r.MinY)),
		m.TransformPoint(Pt(r.MaxX, r.MinY)),
		m.TransformPoint(Pt(r.MinX, r.MaxY)),
		m.TransformPoint(Pt(r.MaxX, r.MaxY)),
	}
	out := Rect{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	for _, c := range corners {
		out.MinX = math.Min(out.MinX, c.X)
		out.MinY = math.Min(out.MinY, c.Y)
		out.MaxX = math.Max(out.MaxX, c.X)
		out.MaxY = math.Max(out.MaxY, c.Y)
	}
	return out
}

// PixelBounds returns the integer rectangle of pixels whose centres may fall
// inside r.
func (r Rect) PixelBounds() image.Rectangle {
	if r.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Floor(r.MinX)), int(math.Floor(r.MinY)),
		int(math.Ceil(r.MaxX)), int(math.Ceil(r.MaxY)),
	)
}
