// Package txn encodes layer mutations and applies a batch of them to a
// layer tree as one step.
package txn

import (
	"fmt"
	"image"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/deferred"
	"github.com/gogpu/compositor/internal/layertree"
	"github.com/gogpu/compositor/render"
)

// Kind is the operation type.
type Kind uint8

const (
	OpPosition Kind = iota + 1
	OpSize
	OpCrop
	OpFinalCrop
	OpLayer
	OpRelativeLayer
	OpAlpha
	OpMatrix
	OpFlags
	OpLayerStack
	OpColor
	OpShow
	OpHide
	OpReparent
	OpReparentChildren
	OpDetachChildren
	OpGeometryAppliesWithResize
	OpOverrideScalingMode
	OpDisplayLayerStack
)

var kindNames = map[Kind]string{
	OpPosition:                  "set-position",
	OpSize:                      "set-size",
	OpCrop:                      "set-crop",
	OpFinalCrop:                 "set-final-crop",
	OpLayer:                     "set-layer",
	OpRelativeLayer:             "set-relative-layer",
	OpAlpha:                     "set-alpha",
	OpMatrix:                    "set-matrix",
	OpFlags:                     "set-flags",
	OpLayerStack:                "set-layer-stack",
	OpColor:                     "set-color",
	OpShow:                      "show",
	OpHide:                      "hide",
	OpReparent:                  "reparent",
	OpReparentChildren:          "reparent-children",
	OpDetachChildren:            "detach-children",
	OpGeometryAppliesWithResize: "geometry-applies-with-resize",
	OpOverrideScalingMode:       "override-scaling-mode",
	OpDisplayLayerStack:         "set-display-layer-stack",
}

// String returns the operation name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Op is one mutation. Only the fields its Kind uses are meaningful.
type Op struct {
	Kind  Kind
	Layer layertree.Handle

	Point  geom.Point
	Size   geom.Size
	Rect   image.Rectangle
	Z      int32
	Target layertree.Handle
	Alpha  float64
	Matrix geom.Matrix
	Flags  layertree.Flags
	Mask   layertree.Flags
	Stack  uint32
	Color  render.RGBA

	ScaleToWindow bool

	// Output names the display for OpDisplayLayerStack.
	Output string
}

// Gate is a defer-until condition: the surface Surface has latched Frame.
type Gate = deferred.Gate[layertree.Handle]

// Batch is an ordered set of operations applied together, optionally only
// after every gate is satisfied.
type Batch struct {
	Ops   []Op
	Gates []Gate
}

// Empty reports whether the batch does nothing.
func (b *Batch) Empty() bool {
	return len(b.Ops) == 0
}

// Merge appends other's operations and gates to b. Applying operations in
// order makes other's values win for every property both touch.
func (b *Batch) Merge(other *Batch) {
	b.Ops = append(b.Ops, other.Ops...)
	b.Gates = append(b.Gates, other.Gates...)
}

// Clone returns a deep copy of b.
func (b *Batch) Clone() *Batch {
	return &Batch{
		Ops:   append([]Op(nil), b.Ops...),
		Gates: append([]Gate(nil), b.Gates...),
	}
}

// Layers returns the distinct layers the batch touches, in first-use order.
func (b *Batch) Layers() []layertree.Handle {
	seen := make(map[layertree.Handle]bool)
	var out []layertree.Handle
	for _, op := range b.Ops {
		if op.Layer == layertree.None || seen[op.Layer] {
			continue
		}
		seen[op.Layer] = true
		out = append(out, op.Layer)
	}
	return out
}
