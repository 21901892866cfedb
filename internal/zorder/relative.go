package zorder

import (
	"github.com/gogpu/compositor/internal/layertree"
)

type relative struct {
	target layertree.Handle
	offset int32
}

// effectiveRelatives returns the relative-z references that take part in
// ordering. A reference counts only when its target is live, in scope and
// not the layer itself. References that would make a layer its own anchor
// (directly or through parents and other references) are broken by
// dropping the reference of the most recently created layer in the loop
// until no loop remains.
func effectiveRelatives(scope []*layertree.Layer, inScope map[layertree.Handle]bool, root layertree.Handle) map[layertree.Handle]relative {
	byHandle := make(map[layertree.Handle]*layertree.Layer, len(scope))
	for _, l := range scope {
		byHandle[l.Handle()] = l
	}

	rels := make(map[layertree.Handle]relative)
	for _, l := range scope {
		target, offset, ok := l.Relative()
		if !ok || target == l.Handle() || !inScope[target] {
			continue
		}
		rels[l.Handle()] = relative{target: target, offset: offset}
	}

	anchor := func(h layertree.Handle) layertree.Handle {
		if rel, ok := rels[h]; ok {
			return rel.target
		}
		return anchorParent(byHandle[h], inScope, root)
	}

	// Each pass removes at least one reference, so this terminates.
	for {
		broken := false
		for _, l := range scope {
			cycle := findCycle(l.Handle(), anchor, len(scope))
			if cycle == nil {
				continue
			}
			var newest *layertree.Layer
			for _, h := range cycle {
				if _, ok := rels[h]; !ok {
					continue
				}
				if c := byHandle[h]; newest == nil || c.Seq() > newest.Seq() {
					newest = c
				}
			}
			if newest == nil {
				// Parent edges alone are acyclic.
				continue
			}
			delete(rels, newest.Handle())
			broken = true
			break
		}
		if !broken {
			return rels
		}
	}
}

// findCycle follows anchors from start and returns the members of the loop
// it runs into, or nil when the chain reaches the top level.
func findCycle(start layertree.Handle, anchor func(layertree.Handle) layertree.Handle, limit int) []layertree.Handle {
	seen := make(map[layertree.Handle]int)
	var path []layertree.Handle
	for h := start; h != layertree.None && len(path) <= limit; h = anchor(h) {
		if i, ok := seen[h]; ok {
			return path[i:]
		}
		seen[h] = len(path)
		path = append(path, h)
	}
	return nil
}
