// Package deferred holds items that may only be released once one or more
// surfaces have latched a given frame number.
package deferred

// Gate is satisfied once Surface has latched frame Frame or any later one.
type Gate[S comparable] struct {
	Surface S
	Frame   uint64
}

type held[S comparable, T any] struct {
	item  T
	gates []Gate[S]
}

// Queue releases held items in submission order as their gates are met.
// The zero value is ready to use. Queue is not safe for concurrent use.
type Queue[S comparable, T any] struct {
	items   []held[S, T]
	latched map[S]uint64
}

// Len returns the number of held items.
func (q *Queue[S, T]) Len() int {
	return len(q.items)
}

// Latched returns the last frame number latched for s.
func (q *Queue[S, T]) Latched(s S) (uint64, bool) {
	f, ok := q.latched[s]
	return f, ok
}

// HoldUntil holds item until every gate is satisfied. It reports false,
// without holding anything, when the gates are already satisfied; the
// caller applies the item right away in that case.
func (q *Queue[S, T]) HoldUntil(item T, gates ...Gate[S]) bool {
	if q.satisfied(gates) {
		return false
	}
	q.items = append(q.items, held[S, T]{item: item, gates: append([]Gate[S](nil), gates...)})
	return true
}

// NotifyFrameLatched records that surface latched frame and returns the
// items whose gates are now all satisfied, in the order they were held.
// Frame numbers only move forward: a smaller number than the last one
// seen for the surface is ignored.
func (q *Queue[S, T]) NotifyFrameLatched(surface S, frame uint64) []T {
	if q.latched == nil {
		q.latched = make(map[S]uint64)
	}
	if last, ok := q.latched[surface]; !ok || frame > last {
		q.latched[surface] = frame
	}
	return q.release()
}

// Forget drops what is known about surface and releases every item gated
// on it, since the surface will never latch again.
func (q *Queue[S, T]) Forget(surface S) []T {
	delete(q.latched, surface)
	var out []T
	keep := q.items[:0]
	for _, h := range q.items {
		h.gates = dropSurface(h.gates, surface)
		if q.satisfied(h.gates) {
			out = append(out, h.item)
			continue
		}
		keep = append(keep, h)
	}
	clear(q.items[len(keep):])
	q.items = keep
	return out
}

func (q *Queue[S, T]) release() []T {
	var out []T
	keep := q.items[:0]
	for _, h := range q.items {
		if q.satisfied(h.gates) {
			out = append(out, h.item)
			continue
		}
		keep = append(keep, h)
	}
	clear(q.items[len(keep):])
	q.items = keep
	return out
}

func (q *Queue[S, T]) satisfied(gates []Gate[S]) bool {
	for _, g := range gates {
		f, ok := q.latched[g.Surface]
		if !ok || f < g.Frame {
			return false
		}
	}
	return true
}

func dropSurface[S comparable](gates []Gate[S], s S) []Gate[S] {
	out := gates[:0]
	for _, g := range gates {
		if g.Surface != s {
			out = append(out, g)
		}
	}
	return out
}
