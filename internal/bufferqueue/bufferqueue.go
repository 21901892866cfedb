// Package bufferqueue is the producer side of buffer transport: an ordered
// queue of image buffers per surface, each stamped with a frame number.
//
// Producers push from any goroutine and block once a surface has depth
// buffers waiting. The consumer latches one buffer at a time, in order.
package bufferqueue

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/compositor/geom"
)

var (
	// ErrClosed is returned when pushing to a surface that was closed.
	ErrClosed = errors.New("bufferqueue: surface closed")

	// ErrUnknownSurface is returned for surfaces that were never opened.
	ErrUnknownSurface = errors.New("bufferqueue: unknown surface")
)

// Buffer is one queued producer buffer.
type Buffer struct {
	Image *image.RGBA
	Frame uint64
	Size  geom.Size
}

type surface struct {
	pending []Buffer
	next    uint64

	// slots bounds the number of pending buffers.
	slots chan struct{}
	done  chan struct{}
}

// Channel holds the queues of all surfaces.
type Channel[S comparable] struct {
	mu       sync.Mutex
	depth    int
	base     uint64
	surfaces map[S]*surface
	onPush   func(S)
}

// New creates a channel whose surfaces queue at most depth buffers and
// number their first buffer base. onPush, if not nil, is called after each
// successful push, outside the channel's lock.
func New[S comparable](depth int, base uint64, onPush func(S)) *Channel[S] {
	if depth < 1 {
		depth = 1
	}
	return &Channel[S]{
		depth:    depth,
		base:     base,
		surfaces: make(map[S]*surface),
		onPush:   onPush,
	}
}

// Open registers a surface. Opening an open surface is a no-op.
func (c *Channel[S]) Open(s S) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.surfaces[s]; ok {
		return
	}
	c.surfaces[s] = &surface{
		next:  c.base,
		slots: make(chan struct{}, c.depth),
		done:  make(chan struct{}),
	}
}

// Close unregisters a surface, drops its pending buffers and fails any
// blocked Push.
func (c *Channel[S]) Close(s S) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sf, ok := c.surfaces[s]
	if !ok {
		return
	}
	close(sf.done)
	delete(c.surfaces, s)
}

// Push queues img on surface s and returns its frame number. It blocks
// while the surface's queue is full.
func (c *Channel[S]) Push(ctx context.Context, s S, img *image.RGBA) (uint64, error) {
	if img == nil {
		return 0, errors.New("bufferqueue: nil buffer")
	}
	c.mu.Lock()
	sf, ok := c.surfaces[s]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnknownSurface, s)
	}

	select {
	case sf.slots <- struct{}{}:
	case <-sf.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	c.mu.Lock()
	select {
	case <-sf.done:
		c.mu.Unlock()
		return 0, ErrClosed
	default:
	}
	frame := sf.next
	sf.next++
	b := img.Bounds()
	sf.pending = append(sf.pending, Buffer{Image: img, Frame: frame, Size: geom.Sz(b.Dx(), b.Dy())})
	c.mu.Unlock()

	if c.onPush != nil {
		c.onPush(s)
	}
	return frame, nil
}

// LatchNext removes and returns the oldest pending buffer of s.
func (c *Channel[S]) LatchNext(s S) (Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sf, ok := c.surfaces[s]
	if !ok || len(sf.pending) == 0 {
		return Buffer{}, false
	}
	b := sf.pending[0]
	sf.pending[0] = Buffer{}
	sf.pending = sf.pending[1:]
	<-sf.slots
	return b, true
}

// NextFrameNumber returns the frame number the next buffer pushed to s
// will get.
func (c *Channel[S]) NextFrameNumber(s S) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sf, ok := c.surfaces[s]
	if !ok {
		return 0, false
	}
	return sf.next, true
}

// Pending returns the number of buffers waiting on s.
func (c *Channel[S]) Pending(s S) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sf, ok := c.surfaces[s]; ok {
		return len(sf.pending)
	}
	return 0
}
