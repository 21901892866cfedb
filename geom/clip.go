package geom

// Clip restricts drawing to the points whose image under ToLocal lies in Rect.
// It expresses a rectangle in some layer's own space, so rotated and scaled
// ancestors clip their descendants exactly.
type Clip struct {
	ToLocal Matrix
	Rect    Rect
}

// Contains reports whether output-space point p passes the clip.
func (c Clip) Contains(p Point) bool {
	return c.Rect.Contains(c.ToLocal.TransformPoint(p))
}

// OutputBounds returns the output-space bounding box of the clip region.
// The second result is false when the region is empty.
func (c Clip) OutputBounds() (Rect, bool) {
	if c.Rect.Empty() {
		return Rect{}, false
	}
	toOutput, ok := c.ToLocal.Invert()
	if !ok {
		return Rect{}, false
	}
	return c.Rect.Transform(toOutput), true
}
