package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/bufferqueue"
	"github.com/gogpu/compositor/internal/capture"
	"github.com/gogpu/compositor/internal/deferred"
	"github.com/gogpu/compositor/internal/layertree"
	"github.com/gogpu/compositor/internal/txn"
	"github.com/gogpu/compositor/internal/zorder"
	"github.com/gogpu/compositor/render"
)

// Compositor owns the layer tree and composes it onto its outputs.
//
// All scene state is owned by a single commit loop goroutine. Clients
// submit requests (layer creation, transactions, captures) that the loop
// handles in submission order at frame boundaries, so no request ever
// observes a half-applied transaction.
//
// Each frame:
//  1. runs the submitted requests, applying or holding transactions
//  2. latches queued buffers and releases the deferred transactions they
//     satisfy
//  3. serves captures
//  4. composites every output
//
// All methods are safe for concurrent use.
type Compositor struct {
	cfg        Config
	background render.RGBA
	rasterizer render.Rasterizer

	outputs *outputSet
	buffers *bufferqueue.Channel[layertree.Handle]

	// --- Inbox ---

	inboxMu   sync.Mutex
	inboxCond *sync.Cond
	inbox     []*request

	// --- Commit loop state ---

	tree     *layertree.Tree
	applier  *txn.Applier
	deferred deferred.Queue[layertree.Handle, *txn.Batch]
	frame    uint64

	// --- Lifecycle ---

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	stopped   bool
}

// request is a unit of work for the commit loop. Requests are handled in
// submission order: latch takes the oldest queued buffer of that layer,
// then run mutates state and read observes it. done, if set, is closed
// once the frame that handled the request has been composited.
type request struct {
	latch layertree.Handle
	run   func()
	read  func()
	done  chan struct{}
}

// New creates a compositor. Call Start to run its commit loop.
func New(opts ...Option) (*Compositor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}
	bg, err := render.ParseHex(o.config.Background)
	if err != nil {
		return nil, fmt.Errorf("%w: background: %w", ErrInvalidConfig, err)
	}
	if o.rasterizer == nil {
		o.rasterizer = render.NewSoftwareRasterizer()
	}

	c := &Compositor{
		cfg:        o.config,
		background: bg,
		rasterizer: o.rasterizer,
		outputs:    newOutputSet(o.config.Outputs),
		tree:       layertree.New(),
	}
	c.inboxCond = sync.NewCond(&c.inboxMu)
	c.buffers = bufferqueue.New(o.config.BufferQueueDepth, o.config.FrameNumberBase, c.kick)
	c.applier = &txn.Applier{
		Tree:     c.tree,
		Detach:   detachSelector(o.config.DetachPolicy),
		Displays: c.outputs,
	}
	return c, nil
}

func detachSelector(p DetachPolicy) func(parent, child *layertree.Layer) bool {
	if p == DetachAll {
		return nil
	}
	return func(parent, child *layertree.Layer) bool {
		return child.Owner != parent.Owner
	}
}

// Start begins the commit loop. The loop runs until ctx is cancelled or
// Stop is called. A compositor can be started only once.
func (c *Compositor) Start(ctx context.Context) error {
	c.startedMu.Lock()
	defer c.startedMu.Unlock()

	if c.stopped {
		return ErrClosed
	}
	if c.started {
		return errors.New("compositor: already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	// Wake the loop if the parent context is cancelled while it waits.
	context.AfterFunc(c.ctx, func() {
		c.inboxMu.Lock()
		c.inboxCond.Broadcast()
		c.inboxMu.Unlock()
	})

	c.wg.Add(1)
	go c.commitLoop()

	Logger().Info("compositor started", "outputs", len(c.cfg.Outputs))
	return nil
}

// Stop shuts the commit loop down and waits for it to exit. Requests still
// waiting fail with ErrClosed. Stop is idempotent.
func (c *Compositor) Stop() error {
	c.startedMu.Lock()
	if !c.started || c.stopped {
		c.stopped = true
		c.startedMu.Unlock()
		return nil
	}
	c.stopped = true
	c.startedMu.Unlock()

	c.cancel()
	c.wg.Wait()

	Logger().Info("compositor stopped", "frames", c.frame)
	return nil
}

// kick is called for every queued buffer. It places a latch request in
// the inbox so the buffer is latched before anything submitted after it.
func (c *Compositor) kick(h layertree.Handle) {
	c.inboxMu.Lock()
	c.inbox = append(c.inbox, &request{latch: h})
	c.inboxCond.Signal()
	c.inboxMu.Unlock()
}

// running returns the loop context, or an error if the loop is not running.
func (c *Compositor) running() (context.Context, error) {
	c.startedMu.Lock()
	defer c.startedMu.Unlock()
	switch {
	case c.stopped:
		return nil, ErrClosed
	case !c.started:
		return nil, ErrNotStarted
	}
	return c.ctx, nil
}

// submit hands r to the commit loop. With wait set it blocks until the
// frame that handled r has been composited.
func (c *Compositor) submit(ctx context.Context, r *request, wait bool) error {
	loop, err := c.running()
	if err != nil {
		return err
	}
	if wait {
		r.done = make(chan struct{})
	}

	c.inboxMu.Lock()
	c.inbox = append(c.inbox, r)
	c.inboxCond.Signal()
	c.inboxMu.Unlock()

	if !wait {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-loop.Done():
		select {
		case <-r.done:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (c *Compositor) commitLoop() {
	defer c.wg.Done()

	for {
		c.inboxMu.Lock()
		for len(c.inbox) == 0 {
			if c.ctx.Err() != nil {
				c.inboxMu.Unlock()
				return
			}
			c.inboxCond.Wait()
		}
		if c.ctx.Err() != nil {
			c.inboxMu.Unlock()
			return
		}
		reqs := c.inbox
		c.inbox = nil
		c.inboxMu.Unlock()

		c.runFrame(reqs)
	}
}

func (c *Compositor) runFrame(reqs []*request) {
	for _, r := range reqs {
		if r.latch != layertree.None {
			if b, ok := c.buffers.LatchNext(r.latch); ok {
				c.latchBuffer(r.latch, b)
			}
		}
		if r.run != nil {
			r.run()
		}
		if r.read != nil {
			r.read()
		}
	}

	c.frame++
	c.composite()

	for _, r := range reqs {
		if r.done != nil {
			close(r.done)
		}
	}
}

func (c *Compositor) latchBuffer(h layertree.Handle, b bufferqueue.Buffer) {
	l, ok := c.tree.Get(h)
	if !ok {
		return
	}
	resized := l.Geometry.LatchBuffer(b.Size)
	l.Buffer = b.Image
	l.FrameNumber = b.Frame
	Logger().Debug("buffer latched",
		"layer", h, "frame", b.Frame, "size", b.Size, "geometry_latched", resized)

	for _, held := range c.deferred.NotifyFrameLatched(h, b.Frame) {
		Logger().Debug("deferred transaction released", "layer", h, "frame", b.Frame, "ops", len(held.Ops))
		c.applyBatch(held)
	}
}

func (c *Compositor) composite() {
	for _, o := range c.outputs.all() {
		dl := capture.Output(c.tree, o.Width, o.Height, zorder.AllZ(o.LayerStack), c.background)
		img, err := c.rasterizer.Composite(dl)
		if err != nil {
			Logger().Warn("composition failed", "output", o.ID, "frame", c.frame, "err", err)
			continue
		}
		c.outputs.store(o.ID, img, c.frame)
	}
	Logger().Debug("frame composited", "frame", c.frame, "layers", c.tree.Len())
}

// commit applies b now or holds it until its gates are met.
func (c *Compositor) commit(b *txn.Batch) []*txn.OpError {
	if len(b.Gates) > 0 {
		gates := c.liveGates(b.Gates)
		if c.deferred.HoldUntil(b, gates...) {
			Logger().Debug("transaction deferred", "ops", len(b.Ops), "gates", len(gates))
			return nil
		}
	}
	return c.applyBatch(b)
}

// liveGates drops gates on layers that no longer exist; they can never be
// latched and count as met.
func (c *Compositor) liveGates(gates []txn.Gate) []txn.Gate {
	out := gates[:0:0]
	for _, g := range gates {
		if c.tree.Alive(g.Surface) {
			out = append(out, g)
			continue
		}
		Logger().Warn("defer gate on missing layer ignored",
			"layer", g.Surface, "frame", g.Frame, "err", ErrDanglingReference)
	}
	return out
}

func (c *Compositor) applyBatch(b *txn.Batch) []*txn.OpError {
	errs := c.applier.Apply(b)
	for _, e := range errs {
		Logger().Warn("operation dropped", "op", e.Op.Kind, "layer", e.Op.Layer, "err", e.Err)
	}
	return errs
}

func (c *Compositor) createLayer(owner uuid.UUID, cfg LayerConfig) (Handle, error) {
	if !render.SupportedFormat(cfg.Format) {
		return NoLayer, fmt.Errorf("%w: %v", ErrUnsupportedFormat, cfg.Format)
	}
	var flags layertree.Flags
	if cfg.Hidden {
		flags |= layertree.FlagHidden
	}
	h, err := c.tree.Create(layertree.Config{
		Name:   cfg.Name,
		Size:   geom.Sz(cfg.Width, cfg.Height),
		Format: cfg.Format,
		Kind:   cfg.Kind,
		Flags:  flags,
		Parent: cfg.Parent,
		Owner:  owner,
	})
	if err != nil {
		return NoLayer, err
	}
	if cfg.Kind == BufferLayer {
		c.buffers.Open(h)
	}
	Logger().Debug("layer created", "layer", h, "name", cfg.Name, "kind", cfg.Kind, "parent", cfg.Parent)
	return h, nil
}

func (c *Compositor) destroyLayer(h Handle) error {
	orphans, err := c.tree.Destroy(h)
	if err != nil {
		return err
	}
	c.buffers.Close(h)
	for _, held := range c.deferred.Forget(h) {
		Logger().Debug("deferred transaction released by destroy", "layer", h, "ops", len(held.Ops))
		c.applyBatch(held)
	}
	Logger().Debug("layer destroyed", "layer", h, "orphans", len(orphans))
	return nil
}

// Apply submits t without waiting for it to be applied. Dropped
// operations are logged.
func (c *Compositor) Apply(ctx context.Context, t *Transaction) error {
	b := t.batch.Clone()
	return c.submit(ctx, &request{run: func() { c.commit(b) }}, false)
}

// ApplySync submits t and waits until a frame reflecting it has been
// composited. A transaction held by DeferTransactionUntil returns once it
// is held. Operations that were dropped are reported as an *ApplyError;
// the rest of t was applied.
func (c *Compositor) ApplySync(ctx context.Context, t *Transaction) error {
	b := t.batch.Clone()
	var errs []*txn.OpError
	if err := c.submit(ctx, &request{run: func() { errs = c.commit(b) }}, true); err != nil {
		return err
	}
	return newApplyError(errs)
}

// Flush waits until every request submitted before it has been handled
// and a frame has been composited.
func (c *Compositor) Flush(ctx context.Context) error {
	return c.submit(ctx, &request{}, true)
}

// QueueBuffer queues img as the next buffer of layer h and returns its
// frame number. It blocks while BufferQueueDepth buffers are waiting. The
// compositor reads img until a later buffer replaces it; the caller must
// not modify it.
func (c *Compositor) QueueBuffer(ctx context.Context, h Handle, img *image.RGBA) (uint64, error) {
	loop, err := c.running()
	if err != nil {
		return 0, err
	}
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(loop, cancel)
	defer stop()

	frame, err := c.buffers.Push(pctx, h, img)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, bufferqueue.ErrUnknownSurface), errors.Is(err, bufferqueue.ErrClosed):
		return 0, fmt.Errorf("queue buffer on %v: %w", h, ErrInvalidHandle)
	case loop.Err() != nil && ctx.Err() == nil:
		return 0, ErrClosed
	default:
		return 0, err
	}
}

// NextFrameNumber returns the frame number the next buffer queued on h
// will get.
func (c *Compositor) NextFrameNumber(h Handle) (uint64, error) {
	n, ok := c.buffers.NextFrameNumber(h)
	if !ok {
		return 0, fmt.Errorf("next frame number of %v: %w", h, ErrInvalidHandle)
	}
	return n, nil
}

// Layer returns a snapshot of layer h as of the next frame boundary.
func (c *Compositor) Layer(ctx context.Context, h Handle) (LayerInfo, error) {
	var (
		info LayerInfo
		err  error
	)
	serr := c.submit(ctx, &request{read: func() {
		l, ok := c.tree.Get(h)
		if !ok {
			err = fmt.Errorf("layer %v: %w", h, ErrInvalidHandle)
			return
		}
		info = layerInfo(l)
	}}, true)
	if serr != nil {
		return LayerInfo{}, serr
	}
	return info, err
}

// DrawOrder returns the layers shown on an output, back to front.
func (c *Compositor) DrawOrder(ctx context.Context, outputID string) ([]Handle, error) {
	if _, ok := c.outputs.get(outputID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, outputID)
	}
	var order []Handle
	err := c.submit(ctx, &request{read: func() {
		o, _ := c.outputs.get(outputID)
		r := layertree.NewResolver(c.tree)
		order = zorder.Resolve(c.tree, r, zorder.AllZ(o.LayerStack))
	}}, true)
	return order, err
}

// Output returns the output with the given ID.
func (c *Compositor) Output(id string) (Output, error) {
	o, ok := c.outputs.get(id)
	if !ok {
		return Output{}, fmt.Errorf("%w: %q", ErrUnknownOutput, id)
	}
	return o, nil
}

// Outputs returns all outputs in configuration order.
func (c *Compositor) Outputs() []Output {
	return c.outputs.all()
}

// LastFrame returns the image most recently composited for an output and
// its frame number. The image is nil before the first frame.
func (c *Compositor) LastFrame(outputID string) (*image.RGBA, uint64, error) {
	return c.outputs.last(outputID)
}
