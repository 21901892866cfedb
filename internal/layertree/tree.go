package layertree

import (
	"errors"
	"fmt"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/latch"
	"github.com/gogpu/compositor/render"
	"github.com/google/uuid"
)

var (
	// ErrInvalidHandle is returned for operations on unknown or destroyed layers.
	ErrInvalidHandle = errors.New("layertree: invalid layer handle")

	// ErrInvalidHierarchy is returned when a reparent would create a cycle.
	ErrInvalidHierarchy = errors.New("layertree: invalid hierarchy")

	// ErrInvalidSize is returned for negative layer sizes.
	ErrInvalidSize = errors.New("layertree: invalid layer size")
)

// Tree is the arena of layers. It is not safe for concurrent use; the
// compositor's commit loop is its only writer.
type Tree struct {
	// layers is indexed by handle; destroyed slots are nil.
	layers []*Layer
	seq    uint64
	live   int
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{layers: make([]*Layer, 1)}
}

// Len returns the number of live layers.
func (t *Tree) Len() int {
	return t.live
}

// Create adds a layer and returns its handle.
func (t *Tree) Create(cfg Config) (Handle, error) {
	if cfg.Size.W < 0 || cfg.Size.H < 0 {
		return None, fmt.Errorf("%w: %dx%d", ErrInvalidSize, cfg.Size.W, cfg.Size.H)
	}
	var parent *Layer
	if cfg.Parent != None {
		p, ok := t.Get(cfg.Parent)
		if !ok {
			return None, fmt.Errorf("parent %v: %w", cfg.Parent, ErrInvalidHandle)
		}
		parent = p
	}

	t.seq++
	h := Handle(len(t.layers))
	l := &Layer{
		handle:   h,
		seq:      t.seq,
		Name:     cfg.Name,
		Owner:    cfg.Owner,
		Kind:     cfg.Kind,
		Format:   cfg.Format,
		Flags:    cfg.Flags,
		Alpha:    1,
		Matrix:   geom.Identity(),
		Color:    render.Black,
		Geometry: latch.New(cfg.Size),
	}
	t.layers = append(t.layers, l)
	t.live++

	if parent != nil {
		l.parent = parent.handle
		parent.children = append(parent.children, h)
	}
	return h, nil
}

// Get returns the live layer for h.
func (t *Tree) Get(h Handle) (*Layer, bool) {
	if h == None || int(h) >= len(t.layers) {
		return nil, false
	}
	l := t.layers[h]
	return l, l != nil
}

// Alive reports whether h names a live layer.
func (t *Tree) Alive(h Handle) bool {
	_, ok := t.Get(h)
	return ok
}

// All returns every live layer in creation order.
func (t *Tree) All() []*Layer {
	out := make([]*Layer, 0, t.live)
	for _, l := range t.layers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

// OwnedBy returns the handles of all live layers owned by id.
func (t *Tree) OwnedBy(id uuid.UUID) []Handle {
	var out []Handle
	for _, l := range t.layers {
		if l != nil && l.Owner == id {
			out = append(out, l.handle)
		}
	}
	return out
}

// Destroy removes h from the tree and releases its buffer.
// Children are not destroyed: they become roots keeping their local
// geometry, or their frozen frame if they were detached. Layers stacked
// relative to h fall back to their absolute z. Destroy returns the
// orphaned children.
func (t *Tree) Destroy(h Handle) ([]Handle, error) {
	l, ok := t.Get(h)
	if !ok {
		return nil, fmt.Errorf("destroy %v: %w", h, ErrInvalidHandle)
	}

	if p, ok := t.Get(l.parent); ok {
		p.children = remove(p.children, h)
	}
	orphans := l.children
	for _, c := range orphans {
		if cl, ok := t.Get(c); ok {
			// A detached child stays where it was frozen.
			cl.parent = None
		}
	}
	for _, other := range t.layers {
		if other != nil && other.hasRelative && other.relativeOf == h {
			other.clearRelative()
		}
	}

	l.children = nil
	l.Buffer = nil
	t.layers[h] = nil
	t.live--
	return orphans, nil
}

// IsAncestor reports whether a is a strict ancestor of d.
func (t *Tree) IsAncestor(a, d Handle) bool {
	l, ok := t.Get(d)
	// Bounded by the arena size so a corrupted chain cannot loop forever.
	for i := 0; ok && i < len(t.layers); i++ {
		if l.parent == None {
			return false
		}
		if l.parent == a {
			return true
		}
		l, ok = t.Get(l.parent)
	}
	return false
}

// Reparent moves h under newParent, keeping h's local geometry.
//
// Reparenting to None detaches h in place: it keeps its draw-order slot and
// its last resolved parent frame, but no longer follows the parent.
// Making h a child of itself or of one of its descendants fails with
// ErrInvalidHierarchy and leaves the tree unchanged.
func (t *Tree) Reparent(h, newParent Handle) error {
	l, ok := t.Get(h)
	if !ok {
		return fmt.Errorf("reparent %v: %w", h, ErrInvalidHandle)
	}
	if newParent == None {
		t.detach(l, NewResolver(t))
		return nil
	}
	np, ok := t.Get(newParent)
	if !ok {
		return fmt.Errorf("reparent %v to %v: %w", h, newParent, ErrInvalidHandle)
	}
	if newParent == h || t.IsAncestor(h, newParent) {
		return fmt.Errorf("reparent %v to %v: %w", h, newParent, ErrInvalidHierarchy)
	}
	t.move(l, np)
	return nil
}

// ReparentChildren moves the direct children of from under to, preserving
// their order and local geometry. A None target detaches them in place.
func (t *Tree) ReparentChildren(from, to Handle) error {
	fl, ok := t.Get(from)
	if !ok {
		return fmt.Errorf("reparent children of %v: %w", from, ErrInvalidHandle)
	}
	if to == None {
		r := NewResolver(t)
		for _, c := range fl.Children() {
			if cl, ok := t.Get(c); ok {
				t.detach(cl, r)
			}
		}
		return nil
	}
	tl, ok := t.Get(to)
	if !ok {
		return fmt.Errorf("reparent children of %v to %v: %w", from, to, ErrInvalidHandle)
	}
	if to == from {
		return nil
	}

	var errs []error
	for _, c := range fl.Children() {
		cl, ok := t.Get(c)
		if !ok {
			continue
		}
		if c == to || t.IsAncestor(c, to) {
			errs = append(errs, fmt.Errorf("reparent %v to %v: %w", c, to, ErrInvalidHierarchy))
			continue
		}
		t.move(cl, tl)
	}
	return errors.Join(errs...)
}

// DetachChildren detaches the direct children of h that detach selects.
// A nil detach selects every child. Detached children freeze the frame
// their parent gave them at this moment and stop following later parent
// changes; their own state is still applied.
func (t *Tree) DetachChildren(h Handle, detach func(parent, child *Layer) bool) ([]Handle, error) {
	l, ok := t.Get(h)
	if !ok {
		return nil, fmt.Errorf("detach children of %v: %w", h, ErrInvalidHandle)
	}
	r := NewResolver(t)
	var out []Handle
	for _, c := range l.children {
		cl, ok := t.Get(c)
		if !ok || cl.detached {
			continue
		}
		if detach != nil && !detach(l, cl) {
			continue
		}
		t.detach(cl, r)
		out = append(out, c)
	}
	return out, nil
}

func (t *Tree) detach(l *Layer, r *Resolver) {
	if l.detached {
		return
	}
	l.frozen = r.parentFrame(l)
	l.detached = true
}

func (t *Tree) move(l, np *Layer) {
	if op, ok := t.Get(l.parent); ok {
		op.children = remove(op.children, l.handle)
	}
	l.parent = np.handle
	l.detached = false
	l.frozen = Frame{}
	np.children = append(np.children, l.handle)
}

func remove(hs []Handle, h Handle) []Handle {
	for i, x := range hs {
		if x == h {
			return append(hs[:i:i], hs[i+1:]...)
		}
	}
	return hs
}
