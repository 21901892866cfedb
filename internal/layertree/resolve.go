package layertree

import (
	"github.com/gogpu/compositor/geom"
)

// Frame is what a parent hands down to its children: the accumulated
// transform from the parent's child space to output space, the opacity
// and visibility of the ancestor chain, and the clips of every ancestor.
type Frame struct {
	Transform  geom.Matrix
	Alpha      float64
	Clips      []geom.Clip
	Visible    bool
	LayerStack uint32

	// Root marks the frame of a layer with no parent; such a layer uses its
	// own layer stack.
	Root bool
}

func rootFrame() Frame {
	return Frame{Transform: geom.Identity(), Alpha: 1, Visible: true, Root: true}
}

// Resolved is the effective state of one layer for the current tree.
type Resolved struct {
	Handle Handle

	// LayerTransform maps layer space to output space.
	LayerTransform geom.Matrix

	// ContentTransform maps buffer space to output space. It differs from
	// LayerTransform only when the buffer is scaled to the layer size.
	ContentTransform geom.Matrix

	// Bounds is size intersected with crop, in layer space.
	Bounds geom.Rect

	Alpha float64

	// Clips holds the ancestor clips, the layer's own bounds and its final
	// crop, all of which apply to the layer and to its attached children.
	Clips []geom.Clip

	Visible    bool
	LayerStack uint32
}

// Resolver computes Resolved values with memoization. A Resolver reflects
// the tree at the time of each call and must be discarded after the tree
// changes.
type Resolver struct {
	tree  *Tree
	root  Handle
	cache map[Handle]*Resolved
}

// NewResolver resolves layers as they appear on an output.
func NewResolver(t *Tree) *Resolver {
	return &Resolver{tree: t, cache: make(map[Handle]*Resolved)}
}

// NewSubtreeResolver resolves the subtree rooted at root as if root were
// placed at the output origin with no ancestors.
func NewSubtreeResolver(t *Tree, root Handle) *Resolver {
	r := NewResolver(t)
	r.root = root
	return r
}

// Root returns the subtree root, or None in output mode.
func (r *Resolver) Root() Handle {
	return r.root
}

// InScope reports whether h takes part in this resolution. In subtree mode
// that is root and its attached descendants.
func (r *Resolver) InScope(h Handle) bool {
	l, ok := r.tree.Get(h)
	if !ok {
		return false
	}
	if r.root == None {
		return true
	}
	for i := 0; i <= len(r.tree.layers); i++ {
		if l.handle == r.root {
			return true
		}
		if l.detached || l.parent == None {
			return false
		}
		if l, ok = r.tree.Get(l.parent); !ok {
			return false
		}
	}
	return false
}

// Resolve returns the effective state of h.
func (r *Resolver) Resolve(h Handle) (*Resolved, bool) {
	if res, ok := r.cache[h]; ok {
		return res, true
	}
	l, ok := r.tree.Get(h)
	if !ok {
		return nil, false
	}
	res := r.resolve(l)
	r.cache[h] = res
	return res, true
}

// ChildFrame returns the frame h hands to its attached children.
func (r *Resolver) ChildFrame(h Handle) Frame {
	res, ok := r.Resolve(h)
	if !ok {
		return rootFrame()
	}
	l, _ := r.tree.Get(h)
	sx, sy := l.Geometry.ContentScale()
	return Frame{
		Transform:  res.LayerTransform.Multiply(geom.Scale(sx, sy)),
		Alpha:      res.Alpha,
		Clips:      res.Clips,
		Visible:    res.Visible,
		LayerStack: res.LayerStack,
	}
}

func (r *Resolver) isCaptureRoot(l *Layer) bool {
	return r.root != None && l.handle == r.root
}

func (r *Resolver) parentFrame(l *Layer) Frame {
	switch {
	case r.isCaptureRoot(l):
		return rootFrame()
	case l.detached:
		return l.frozen
	case l.parent == None:
		return rootFrame()
	}
	if _, ok := r.tree.Get(l.parent); !ok {
		return rootFrame()
	}
	return r.ChildFrame(l.parent)
}

func (r *Resolver) resolve(l *Layer) *Resolved {
	pf := r.parentFrame(l)
	g := l.Geometry.Active()

	local := geom.Translate(g.Position.X, g.Position.Y).Multiply(l.Matrix)
	if r.isCaptureRoot(l) {
		local = geom.Identity()
	}
	lt := pf.Transform.Multiply(local)
	sx, sy := l.Geometry.ContentScale()

	bounds := geom.RectFromSize(g.Size)
	if !g.Crop.Empty() {
		bounds = bounds.Intersect(geom.RectFromImage(g.Crop))
	}

	clips := make([]geom.Clip, len(pf.Clips), len(pf.Clips)+2)
	copy(clips, pf.Clips)
	toLayer, invertible := lt.Invert()
	if invertible {
		clips = append(clips, geom.Clip{ToLocal: toLayer, Rect: bounds})
	} else {
		clips = append(clips, geom.Clip{ToLocal: geom.Identity(), Rect: geom.Rect{}})
	}
	if !g.FinalCrop.Empty() && !r.isCaptureRoot(l) {
		clips = append(clips, geom.Clip{ToLocal: geom.Identity(), Rect: geom.RectFromImage(g.FinalCrop)})
	}

	stack := pf.LayerStack
	if pf.Root {
		stack = l.LayerStack
	}

	return &Resolved{
		Handle:           l.handle,
		LayerTransform:   lt,
		ContentTransform: lt.Multiply(geom.Scale(sx, sy)),
		Bounds:           bounds,
		Alpha:            pf.Alpha * l.Alpha,
		Clips:            clips,
		Visible:          pf.Visible && !l.Hidden() && invertible,
		LayerStack:       stack,
	}
}
