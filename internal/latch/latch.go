// Package latch implements the per-layer geometry latch: the state machine
// that decides whether a geometry change is visible as soon as its
// transaction commits or only once a buffer of the requested size arrives.
//
// A layer is either Immediate or PendingResize. A size change that differs
// from the last latched buffer moves it to PendingResize; only a buffer whose
// size matches the requested size moves it back. Position, crop and final
// crop are immediate unless the layer carries the "applies with resize"
// marker, in which case they are buffered until that buffer latches. A later
// value for the same property overwrites the buffered one.
package latch

import (
	"fmt"
	"image"

	"github.com/gogpu/compositor/geom"
)

// State is the latch state of a layer.
type State uint8

const (
	// Immediate means geometry changes are visible at commit.
	Immediate State = iota

	// PendingResize means a size change waits for a matching buffer.
	PendingResize
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Immediate:
		return "Immediate"
	case PendingResize:
		return "PendingResize"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Property is a bitmask of geometry properties.
type Property uint8

const (
	PropPosition Property = 1 << iota
	PropSize
	PropCrop
	PropFinalCrop
)

// Geometry is the set of properties governed by the latch.
// An empty Crop or FinalCrop means "no crop".
type Geometry struct {
	Position  geom.Point
	Size      geom.Size
	Crop      image.Rectangle
	FinalCrop image.Rectangle
}

// Latch is the geometry latch of one layer. The zero value is not usable;
// create one with New.
type Latch struct {
	state  State
	active Geometry

	pending    Geometry
	pendingSet Property

	// appliesWithResize is sticky until a matching buffer latches.
	appliesWithResize bool

	target geom.Size

	buffer    geom.Size
	hasBuffer bool

	scaleToWindow bool
}

// New creates a latch for a layer of the given initial size.
func New(size geom.Size) *Latch {
	return &Latch{
		active: Geometry{Size: size},
		target: size,
	}
}

// State returns the current latch state.
func (l *Latch) State() State {
	return l.state
}

// Active returns the geometry currently visible.
func (l *Latch) Active() Geometry {
	return l.active
}

// Pending returns the buffered geometry and which of its properties are set.
func (l *Latch) Pending() (Geometry, Property) {
	return l.pending, l.pendingSet
}

// RequestedSize returns the size a producer should render its next buffer at.
func (l *Latch) RequestedSize() geom.Size {
	return l.target
}

// AppliesWithResize reports whether the marker is set.
func (l *Latch) AppliesWithResize() bool {
	return l.appliesWithResize
}

// MarkAppliesWithResize makes subsequent position and crop changes wait for
// the next correctly sized buffer.
func (l *Latch) MarkAppliesWithResize() {
	l.appliesWithResize = true
	if !l.hasBuffer {
		l.commitPending()
	}
}

// SetPosition sets the layer position.
func (l *Latch) SetPosition(p geom.Point) {
	if l.appliesWithResize {
		l.pending.Position = p
		l.pendingSet |= PropPosition
		return
	}
	l.active.Position = p
}

// SetCrop sets the buffer-space crop.
func (l *Latch) SetCrop(r image.Rectangle) {
	if l.appliesWithResize {
		l.pending.Crop = r
		l.pendingSet |= PropCrop
		return
	}
	l.active.Crop = r
}

// SetFinalCrop sets the output-space crop.
func (l *Latch) SetFinalCrop(r image.Rectangle) {
	if l.appliesWithResize {
		l.pending.FinalCrop = r
		l.pendingSet |= PropFinalCrop
		return
	}
	l.active.FinalCrop = r
}

// SetSize requests a new layer size.
func (l *Latch) SetSize(s geom.Size) {
	l.target = s

	if !l.needsBuffer() {
		l.active.Size = s
		l.pendingSet &^= PropSize
		l.state = Immediate
		if l.appliesWithResize && !l.hasBuffer {
			// No buffer will ever arrive to satisfy the marker.
			l.commitPending()
		}
		return
	}

	if s == l.buffer {
		// Back to the latched size: nothing to wait for.
		l.active.Size = s
		l.pendingSet &^= PropSize
		l.state = Immediate
		return
	}

	l.pending.Size = s
	l.pendingSet |= PropSize
	l.state = PendingResize
}

// SetScaleToWindow toggles scaling of buffers to the requested size.
// While enabled, size changes never wait for a buffer.
func (l *Latch) SetScaleToWindow(on bool) {
	l.scaleToWindow = on
	if on && l.state == PendingResize {
		l.active.Size = l.target
		l.pendingSet &^= PropSize
		l.state = Immediate
	}
}

// ScaleToWindow reports whether buffers are scaled to the layer size.
func (l *Latch) ScaleToWindow() bool {
	return l.scaleToWindow
}

// LatchBuffer records the arrival of a buffer of the given size and reports
// whether it latched buffered geometry. A buffer that does not match the
// requested size is still displayed but leaves PendingResize untouched.
func (l *Latch) LatchBuffer(size geom.Size) bool {
	l.buffer = size
	l.hasBuffer = true

	if !l.scaleToWindow && size != l.target {
		return false
	}
	if l.state != PendingResize && !l.appliesWithResize {
		return false
	}
	if l.pendingSet&PropSize == 0 {
		l.pending.Size = l.target
		l.pendingSet |= PropSize
	}
	l.commitPending()
	return true
}

// ContentScale returns the factor that maps buffer pixels to layer space.
func (l *Latch) ContentScale() (sx, sy float64) {
	if !l.scaleToWindow || !l.hasBuffer || l.buffer.Empty() {
		return 1, 1
	}
	return float64(l.active.Size.W) / float64(l.buffer.W),
		float64(l.active.Size.H) / float64(l.buffer.H)
}

// needsBuffer reports whether size changes must wait for a buffer.
func (l *Latch) needsBuffer() bool {
	return l.hasBuffer && !l.scaleToWindow
}

func (l *Latch) commitPending() {
	if l.pendingSet&PropPosition != 0 {
		l.active.Position = l.pending.Position
	}
	if l.pendingSet&PropSize != 0 {
		l.active.Size = l.pending.Size
	}
	if l.pendingSet&PropCrop != 0 {
		l.active.Crop = l.pending.Crop
	}
	if l.pendingSet&PropFinalCrop != 0 {
		l.active.FinalCrop = l.pending.FinalCrop
	}
	l.pending = Geometry{}
	l.pendingSet = 0
	l.appliesWithResize = false
	l.state = Immediate
}
