// Package zorder computes the back-to-front paint order of a layer tree.
//
// Every commit resolves the order from scratch. Each layer is anchored to
// exactly one place: its relative-z target when it has a live one, its
// parent otherwise, or the top level when it has neither. Top-level layers
// are sorted by absolute z. Around each anchor, layers with a negative
// relative offset are painted immediately behind it; children (keyed by
// their z) and layers with a non-negative offset (keyed by the offset) are
// painted immediately in front of it. Ties are broken by creation order.
package zorder

import (
	"math"
	"slices"

	"github.com/gogpu/compositor/internal/layertree"
)

// Filter selects what Resolve returns.
type Filter struct {
	// LayerStack is the output's layer stack. Ignored in subtree mode.
	LayerStack uint32

	// ZMin and ZMax bound the absolute z of top-level layers.
	ZMin, ZMax int32
}

// AllZ returns a filter for layerStack that accepts every z.
func AllZ(layerStack uint32) Filter {
	return Filter{LayerStack: layerStack, ZMin: math.MinInt32, ZMax: math.MaxInt32}
}

type entry struct {
	h   layertree.Handle
	key int32
	seq uint64
}

type slot struct {
	behind []entry
	front  []entry
}

// Resolve returns the visible layers of r's scope in paint order.
func Resolve(tree *layertree.Tree, r *layertree.Resolver, f Filter) []layertree.Handle {
	return emit(r, f, build(tree, r))
}

// Order is like Resolve but includes invisible layers and ignores the
// layer stack. It is the raw stacking order, useful for diagnostics.
func Order(tree *layertree.Tree, r *layertree.Resolver) []layertree.Handle {
	p := build(tree, r)
	var out []layertree.Handle
	var walk func(h layertree.Handle)
	walk = func(h layertree.Handle) {
		s := p.slots[h]
		if s == nil {
			// Nothing is stacked against h.
			out = append(out, h)
			return
		}
		for _, e := range s.behind {
			walk(e.h)
		}
		out = append(out, h)
		for _, e := range s.front {
			walk(e.h)
		}
	}
	for _, e := range p.tops {
		walk(e.h)
	}
	return out
}

type plan struct {
	tops  []entry
	slots map[layertree.Handle]*slot
}

func build(tree *layertree.Tree, r *layertree.Resolver) plan {
	var scope []*layertree.Layer
	inScope := make(map[layertree.Handle]bool)
	for _, l := range tree.All() {
		if r.InScope(l.Handle()) {
			scope = append(scope, l)
			inScope[l.Handle()] = true
		}
	}

	relatives := effectiveRelatives(scope, inScope, r.Root())

	p := plan{slots: make(map[layertree.Handle]*slot, len(scope))}
	at := func(h layertree.Handle) *slot {
		s := p.slots[h]
		if s == nil {
			s = &slot{}
			p.slots[h] = s
		}
		return s
	}

	for _, l := range scope {
		h := l.Handle()
		if rel, ok := relatives[h]; ok {
			e := entry{h: h, key: rel.offset, seq: l.Seq()}
			s := at(rel.target)
			if rel.offset < 0 {
				s.behind = append(s.behind, e)
			} else {
				s.front = append(s.front, e)
			}
			continue
		}
		if parent := anchorParent(l, inScope, r.Root()); parent != layertree.None {
			s := at(parent)
			s.front = append(s.front, entry{h: h, key: l.Z(), seq: l.Seq()})
			continue
		}
		p.tops = append(p.tops, entry{h: h, key: l.Z(), seq: l.Seq()})
	}

	sortEntries(p.tops)
	for _, s := range p.slots {
		sortEntries(s.behind)
		sortEntries(s.front)
	}
	return p
}

func emit(r *layertree.Resolver, f Filter, p plan) []layertree.Handle {
	subtree := r.Root() != layertree.None
	var out []layertree.Handle

	var walk func(h layertree.Handle)
	walk = func(h layertree.Handle) {
		s := p.slots[h]
		if s != nil {
			for _, e := range s.behind {
				walk(e.h)
			}
		}
		if res, ok := r.Resolve(h); ok && res.Visible && (subtree || res.LayerStack == f.LayerStack) {
			out = append(out, h)
		}
		if s != nil {
			for _, e := range s.front {
				walk(e.h)
			}
		}
	}

	for _, e := range p.tops {
		if !subtree && (e.key < f.ZMin || e.key > f.ZMax) {
			continue
		}
		walk(e.h)
	}
	return out
}

// anchorParent returns the parent a layer is painted with, or None when the
// layer is top-level in this scope.
func anchorParent(l *layertree.Layer, inScope map[layertree.Handle]bool, root layertree.Handle) layertree.Handle {
	if l.Handle() == root {
		return layertree.None
	}
	p := l.Parent()
	if p == layertree.None || !inScope[p] {
		return layertree.None
	}
	return p
}

func sortEntries(es []entry) {
	slices.SortStableFunc(es, func(a, b entry) int {
		if a.key != b.key {
			if a.key < b.key {
				return -1
			}
			return 1
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}
