package compositor

import (
	"image"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/latch"
	"github.com/gogpu/compositor/internal/layertree"
)

// Handle identifies a layer for its whole lifetime. Handles are never
// reused.
type Handle = layertree.Handle

// NoLayer is the zero Handle. As a parent it means "no parent".
const NoLayer = layertree.None

// LayerKind selects how a layer produces content.
type LayerKind = layertree.Kind

const (
	// BufferLayer shows the last buffer queued with QueueBuffer.
	BufferLayer = layertree.KindBuffer

	// ColorLayer fills its bounds with the color set by SetColor.
	ColorLayer = layertree.KindColor
)

// Flags is the layer flag bitmask used by Transaction.SetFlags.
type Flags = layertree.Flags

// FlagHidden hides a layer and everything attached below it.
const FlagHidden = layertree.FlagHidden

// LayerConfig describes a layer at creation time.
type LayerConfig struct {
	Name          string
	Width, Height int

	// Format is the pixel format of queued buffers. Undefined means
	// RGBA8Unorm.
	Format gputypes.TextureFormat

	Kind   LayerKind
	Hidden bool

	// Parent is the initial parent, or NoLayer for a root layer.
	Parent Handle
}

// LayerInfo is a snapshot of a layer's state.
type LayerInfo struct {
	Handle   Handle
	Name     string
	Owner    uuid.UUID
	Kind     LayerKind
	Parent   Handle
	Children []Handle

	Z           int32
	RelativeTo  Handle
	RelativeZ   int32
	HasRelative bool

	// Position, Size, Crop and FinalCrop are the geometry currently shown.
	Position  geom.Point
	Size      geom.Size
	Crop      image.Rectangle
	FinalCrop image.Rectangle

	// RequestedSize is the size the next buffer should have. It differs
	// from Size while a resize waits for a buffer.
	RequestedSize geom.Size
	Resizing      bool

	Alpha       float64
	Hidden      bool
	Detached    bool
	LayerStack  uint32
	FrameNumber uint64
}

func layerInfo(l *layertree.Layer) LayerInfo {
	g := l.Geometry.Active()
	target, offset, rel := l.Relative()
	return LayerInfo{
		Handle:        l.Handle(),
		Name:          l.Name,
		Owner:         l.Owner,
		Kind:          l.Kind,
		Parent:        l.Parent(),
		Children:      l.Children(),
		Z:             l.Z(),
		RelativeTo:    target,
		RelativeZ:     offset,
		HasRelative:   rel,
		Position:      g.Position,
		Size:          g.Size,
		Crop:          g.Crop,
		FinalCrop:     g.FinalCrop,
		RequestedSize: l.Geometry.RequestedSize(),
		Resizing:      l.Geometry.State() == latch.PendingResize,
		Alpha:         l.Alpha,
		Hidden:        l.Hidden(),
		Detached:      l.Detached(),
		LayerStack:    l.LayerStack,
		FrameNumber:   l.FrameNumber,
	}
}
