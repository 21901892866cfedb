package compositor

import (
	"image"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/txn"
	"github.com/gogpu/compositor/render"
)

// ScalingMode controls how a buffer whose size differs from the layer size
// is shown.
type ScalingMode uint8

const (
	// ScaleFreeze shows buffers unscaled, and size changes wait for a
	// buffer of the new size.
	ScaleFreeze ScalingMode = iota

	// ScaleToWindow stretches buffers to the layer size. Size changes
	// apply at once.
	ScaleToWindow
)

// Transaction is an ordered batch of layer changes that is applied as one
// step. Setters return the transaction so calls can be chained:
//
//	t := compositor.NewTransaction().
//	    SetPosition(h, 64, 64).
//	    SetLayer(h, 10).
//	    Show(h)
//
// A Transaction is not safe for concurrent use. Applying it copies its
// contents, so it may be reused afterwards.
type Transaction struct {
	batch txn.Batch
}

// NewTransaction returns an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Len returns the number of operations.
func (t *Transaction) Len() int {
	return len(t.batch.Ops)
}

func (t *Transaction) add(op txn.Op) *Transaction {
	t.batch.Ops = append(t.batch.Ops, op)
	return t
}

// SetPosition moves the layer's origin in its parent's space.
func (t *Transaction) SetPosition(h Handle, x, y float64) *Transaction {
	return t.add(txn.Op{Kind: txn.OpPosition, Layer: h, Point: geom.Pt(x, y)})
}

// SetSize requests a new layer size. For layers showing a buffer the size
// changes once a buffer of that size is queued, unless the layer scales
// to window.
func (t *Transaction) SetSize(h Handle, w, hgt int) *Transaction {
	return t.add(txn.Op{Kind: txn.OpSize, Layer: h, Size: geom.Sz(w, hgt)})
}

// SetCrop crops the layer in its own space. An empty rectangle removes
// the crop.
func (t *Transaction) SetCrop(h Handle, r image.Rectangle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpCrop, Layer: h, Rect: r})
}

// SetFinalCrop crops the layer in output space, after its transform. An
// empty rectangle removes the crop.
func (t *Transaction) SetFinalCrop(h Handle, r image.Rectangle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpFinalCrop, Layer: h, Rect: r})
}

// SetLayer sets an absolute z and drops any relative z.
func (t *Transaction) SetLayer(h Handle, z int32) *Transaction {
	return t.add(txn.Op{Kind: txn.OpLayer, Layer: h, Z: z})
}

// SetRelativeLayer stacks h directly in front of target for a positive z,
// or directly behind it for a negative z.
func (t *Transaction) SetRelativeLayer(h, target Handle, z int32) *Transaction {
	return t.add(txn.Op{Kind: txn.OpRelativeLayer, Layer: h, Target: target, Z: z})
}

// SetAlpha sets the layer opacity, clamped to [0, 1].
func (t *Transaction) SetAlpha(h Handle, alpha float64) *Transaction {
	return t.add(txn.Op{Kind: txn.OpAlpha, Layer: h, Alpha: alpha})
}

// SetMatrix sets the layer's 2x2 transform. A point (x, y) of the layer
// maps to (dsdx*x + dtdy*y, dtdx*x + dsdy*y) before positioning.
func (t *Transaction) SetMatrix(h Handle, dsdx, dtdx, dtdy, dsdy float64) *Transaction {
	return t.add(txn.Op{Kind: txn.OpMatrix, Layer: h, Matrix: geom.LayerMatrix(dsdx, dtdx, dtdy, dsdy)})
}

// SetFlags sets the flags selected by mask to the values in flags.
func (t *Transaction) SetFlags(h Handle, flags, mask Flags) *Transaction {
	return t.add(txn.Op{Kind: txn.OpFlags, Layer: h, Flags: flags, Mask: mask})
}

// SetLayerStack moves a root layer to another layer stack. Children
// always follow the stack of their root.
func (t *Transaction) SetLayerStack(h Handle, stack uint32) *Transaction {
	return t.add(txn.Op{Kind: txn.OpLayerStack, Layer: h, Stack: stack})
}

// SetColor sets the fill color of a color layer. The color's alpha is
// ignored; use SetAlpha.
func (t *Transaction) SetColor(h Handle, c render.RGBA) *Transaction {
	return t.add(txn.Op{Kind: txn.OpColor, Layer: h, Color: c})
}

// Show clears FlagHidden.
func (t *Transaction) Show(h Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpShow, Layer: h})
}

// Hide sets FlagHidden.
func (t *Transaction) Hide(h Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpHide, Layer: h})
}

// Reparent makes h a child of parent. Reparenting to NoLayer detaches h
// where it is shown.
func (t *Transaction) Reparent(h, parent Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpReparent, Layer: h, Target: parent})
}

// ReparentChildren moves the direct children of h under parent, keeping
// their local geometry.
func (t *Transaction) ReparentChildren(h, parent Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpReparentChildren, Layer: h, Target: parent})
}

// DetachChildren freezes the children of h where they are shown. Which
// children detach depends on the compositor's DetachPolicy.
func (t *Transaction) DetachChildren(h Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpDetachChildren, Layer: h})
}

// DeferTransactionUntil holds the whole transaction until layer target
// has shown frame number frame or a later one. Several gates must all be
// met. A gate on a layer that is destroyed is considered met.
func (t *Transaction) DeferTransactionUntil(target Handle, frame uint64) *Transaction {
	t.batch.Gates = append(t.batch.Gates, txn.Gate{Surface: target, Frame: frame})
	return t
}

// SetGeometryAppliesWithResize makes position and crop changes of h, in
// this and later transactions, wait for the next buffer of the requested
// size.
func (t *Transaction) SetGeometryAppliesWithResize(h Handle) *Transaction {
	return t.add(txn.Op{Kind: txn.OpGeometryAppliesWithResize, Layer: h})
}

// SetOverrideScalingMode sets how buffers of h are scaled.
func (t *Transaction) SetOverrideScalingMode(h Handle, mode ScalingMode) *Transaction {
	return t.add(txn.Op{Kind: txn.OpOverrideScalingMode, Layer: h, ScaleToWindow: mode == ScaleToWindow})
}

// SetDisplayLayerStack selects which layer stack an output shows.
func (t *Transaction) SetDisplayLayerStack(output string, stack uint32) *Transaction {
	return t.add(txn.Op{Kind: txn.OpDisplayLayerStack, Output: output, Stack: stack})
}

// Merge moves the operations and gates of other to the end of t and
// leaves other empty. For a property both set, other's value wins.
func (t *Transaction) Merge(other *Transaction) *Transaction {
	if other == nil || other == t {
		return t
	}
	t.batch.Merge(&other.batch)
	other.batch = txn.Batch{}
	return t
}
