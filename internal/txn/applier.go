package txn

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/compositor/internal/layertree"
)

// ErrDanglingReference is returned when an operation refers to a layer
// that does not exist, other than the layer it modifies.
var ErrDanglingReference = errors.New("txn: dangling reference")

// OpError records why a single operation was dropped.
type OpError struct {
	Op  Op
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("txn: %v on %v: %v", e.Op.Kind, e.Op.Layer, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// DisplaySetter receives display-level operations.
type DisplaySetter interface {
	SetDisplayLayerStack(output string, stack uint32) error
}

// Applier applies batches to a tree.
type Applier struct {
	Tree *layertree.Tree

	// Detach selects which children detach-children detaches. Nil means all.
	Detach func(parent, child *layertree.Layer) bool

	// Displays handles OpDisplayLayerStack. Nil drops those operations.
	Displays DisplaySetter
}

// Apply applies every operation of b in order. Operations that fail are
// dropped individually; the rest still apply. Gates are not checked here.
//
// The geometry-applies-with-resize marker is applied before any other
// operation, so it governs every geometry change in the same batch.
func (a *Applier) Apply(b *Batch) []*OpError {
	var errs []*OpError
	fail := func(op Op, err error) {
		errs = append(errs, &OpError{Op: op, Err: err})
	}

	for _, op := range b.Ops {
		if op.Kind != OpGeometryAppliesWithResize {
			continue
		}
		l, ok := a.Tree.Get(op.Layer)
		if !ok {
			fail(op, layertree.ErrInvalidHandle)
			continue
		}
		l.Geometry.MarkAppliesWithResize()
	}

	for _, op := range b.Ops {
		if op.Kind == OpGeometryAppliesWithResize {
			continue
		}
		if err := a.apply(op); err != nil {
			fail(op, err)
		}
	}
	return errs
}

func (a *Applier) apply(op Op) error {
	if op.Kind == OpDisplayLayerStack {
		if a.Displays == nil {
			return errors.New("no display handler")
		}
		return a.Displays.SetDisplayLayerStack(op.Output, op.Stack)
	}

	l, ok := a.Tree.Get(op.Layer)
	if !ok {
		return layertree.ErrInvalidHandle
	}

	switch op.Kind {
	case OpPosition:
		l.Geometry.SetPosition(op.Point)
	case OpSize:
		if op.Size.W < 0 || op.Size.H < 0 {
			return fmt.Errorf("%w: %dx%d", layertree.ErrInvalidSize, op.Size.W, op.Size.H)
		}
		l.Geometry.SetSize(op.Size)
	case OpCrop:
		l.Geometry.SetCrop(op.Rect)
	case OpFinalCrop:
		l.Geometry.SetFinalCrop(op.Rect)
	case OpLayer:
		l.SetZ(op.Z)
	case OpRelativeLayer:
		if !a.Tree.Alive(op.Target) {
			return fmt.Errorf("%w: relative target %v", ErrDanglingReference, op.Target)
		}
		l.SetRelative(op.Target, op.Z)
	case OpAlpha:
		l.Alpha = clamp01(op.Alpha)
	case OpMatrix:
		l.Matrix = op.Matrix.Linear()
	case OpFlags:
		l.Flags = (l.Flags &^ op.Mask) | (op.Flags & op.Mask)
	case OpLayerStack:
		l.LayerStack = op.Stack
	case OpColor:
		c := op.Color
		c.A = 1
		l.Color = c
	case OpShow:
		l.Flags &^= layertree.FlagHidden
	case OpHide:
		l.Flags |= layertree.FlagHidden
	case OpReparent:
		return a.Tree.Reparent(op.Layer, op.Target)
	case OpReparentChildren:
		return a.Tree.ReparentChildren(op.Layer, op.Target)
	case OpDetachChildren:
		_, err := a.Tree.DetachChildren(op.Layer, a.Detach)
		return err
	case OpOverrideScalingMode:
		l.Geometry.SetScaleToWindow(op.ScaleToWindow)
	default:
		return fmt.Errorf("unknown operation %v", op.Kind)
	}
	return nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
