// Package layertree holds the compositor scene graph: an arena of layers
// addressed by stable handles, their parent/child edges, and the resolution
// of each layer's effective transform, alpha, clips and visibility.
package layertree

import (
	"fmt"
	"image"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/latch"
	"github.com/gogpu/compositor/render"
	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
)

// Handle identifies a layer. Handles are never reused; None is never valid.
type Handle uint32

// None is the zero handle, used for "no parent" and "no layer".
const None Handle = 0

// String returns a short form such as "#12".
func (h Handle) String() string {
	if h == None {
		return "none"
	}
	return fmt.Sprintf("#%d", uint32(h))
}

// Kind selects how a layer produces content.
type Kind uint8

const (
	// KindBuffer layers show the last latched producer buffer.
	KindBuffer Kind = iota

	// KindColor layers fill their bounds with a solid color.
	KindColor
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindColor:
		return "color"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Flags is the layer flag bitmask.
type Flags uint32

const (
	// FlagHidden removes the layer and its attached subtree from composition.
	FlagHidden Flags = 1 << iota
)

// Config describes a layer at creation time.
type Config struct {
	Name   string
	Size   geom.Size
	Format gputypes.TextureFormat
	Kind   Kind
	Flags  Flags
	Parent Handle
	Owner  uuid.UUID
}

// Layer is one node of the scene graph.
//
// Structural fields (parent, children, z source, detach state) are changed
// only through Tree and Layer methods so the tree invariants hold. The
// exported fields are plain per-layer state.
type Layer struct {
	handle Handle
	seq    uint64

	parent   Handle
	children []Handle

	z           int32
	relativeOf  Handle
	relativeZ   int32
	hasRelative bool

	detached bool
	frozen   Frame

	Name       string
	Owner      uuid.UUID
	Kind       Kind
	Format     gputypes.TextureFormat
	Flags      Flags
	Alpha      float64
	Matrix     geom.Matrix
	LayerStack uint32
	Color      render.RGBA

	// Geometry is the latch that owns position, size, crop and final crop.
	Geometry *latch.Latch

	// Buffer is the last latched buffer; nil until one arrives.
	Buffer      *image.RGBA
	FrameNumber uint64
}

// Handle returns the layer's handle.
func (l *Layer) Handle() Handle { return l.handle }

// Seq returns the creation sequence number, used to break z ties.
func (l *Layer) Seq() uint64 { return l.seq }

// Parent returns the parent handle, or None for a root.
func (l *Layer) Parent() Handle { return l.parent }

// Children returns a copy of the ordered child list.
func (l *Layer) Children() []Handle {
	return append([]Handle(nil), l.children...)
}

// Z returns the absolute z. It is kept while a relative z is active.
func (l *Layer) Z() int32 { return l.z }

// SetZ sets the absolute z and makes it the active z source.
func (l *Layer) SetZ(z int32) {
	l.z = z
	l.hasRelative = false
	l.relativeOf = None
	l.relativeZ = 0
}

// Relative returns the relative-z reference, if one is set.
func (l *Layer) Relative() (target Handle, offset int32, ok bool) {
	return l.relativeOf, l.relativeZ, l.hasRelative
}

// SetRelative stacks the layer relative to target. The absolute z is kept
// so the layer can fall back to it if target goes away.
func (l *Layer) SetRelative(target Handle, offset int32) {
	l.relativeOf = target
	l.relativeZ = offset
	l.hasRelative = true
}

// clearRelative drops the relative reference and falls back to z.
func (l *Layer) clearRelative() {
	l.hasRelative = false
	l.relativeOf = None
	l.relativeZ = 0
}

// Hidden reports whether FlagHidden is set.
func (l *Layer) Hidden() bool {
	return l.Flags&FlagHidden != 0
}

// Detached reports whether the layer stopped following its parent.
func (l *Layer) Detached() bool { return l.detached }

// HasContent reports whether the layer has anything to draw.
func (l *Layer) HasContent() bool {
	return l.Kind == KindColor || l.Buffer != nil
}
