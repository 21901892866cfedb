package compositor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
)

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero size output", WithOutput(OutputConfig{ID: "main", Width: 0, Height: 10})},
		{"bad policy", WithDetachPolicy("sometimes")},
		{"no outputs", WithConfig(Config{BufferQueueDepth: 1, FrameNumberBase: 1, DetachPolicy: DetachAll, Background: "#000"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opt); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestCompositorLifecycle(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	ctx := t.Context()

	if err := c.Flush(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Flush() before Start = %v, want ErrNotStarted", err)
	}
	if _, err := c.QueueBuffer(ctx, 1, solid(1, 1, red)); !errors.Is(err, ErrNotStarted) {
		t.Errorf("QueueBuffer() before Start = %v, want ErrNotStarted", err)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := c.Start(ctx); err == nil {
		t.Error("second Start() succeeded")
	}
	if err := c.Flush(ctx); err != nil {
		t.Errorf("Flush() = %v", err)
	}

	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
	if err := c.Apply(ctx, NewTransaction()); !errors.Is(err, ErrClosed) {
		t.Errorf("Apply() after Stop = %v, want ErrClosed", err)
	}
	if err := c.Start(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Stop = %v, want ErrClosed", err)
	}
}

func TestCompositorStopsWithContext(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	// Requests fail once the loop has exited.
	if err := c.Flush(t.Context()); !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
		t.Errorf("Flush() after cancel = %v, want ErrClosed", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v", err)
	}
}

func TestCreateLayerErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.CreateLayer(h.ctx, LayerConfig{Name: "bad", Width: 1, Height: 1, Format: gputypes.TextureFormatR8Unorm})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unsupported format: err = %v, want ErrUnsupportedFormat", err)
	}
	_, err = h.client.CreateLayer(h.ctx, LayerConfig{Name: "bad", Width: -1, Height: 1})
	if !errors.Is(err, ErrInvalidSize) {
		t.Errorf("negative size: err = %v, want ErrInvalidSize", err)
	}
	_, err = h.client.CreateLayer(h.ctx, LayerConfig{Name: "orphan", Width: 1, Height: 1, Parent: Handle(42)})
	if !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("missing parent: err = %v, want ErrInvalidHandle", err)
	}

	l := h.layer("ok", 4, 4, NoLayer)
	if err := h.client.DestroyLayer(h.ctx, l); err != nil {
		t.Fatalf("DestroyLayer() = %v", err)
	}
	if err := h.client.DestroyLayer(h.ctx, l); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("second DestroyLayer() = %v, want ErrInvalidHandle", err)
	}
	if _, err := h.c.Layer(h.ctx, l); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Layer() of destroyed layer = %v, want ErrInvalidHandle", err)
	}
}

func TestQueueBufferErrors(t *testing.T) {
	h := newHarness(t)

	cl := h.create(h.client, LayerConfig{Name: "color", Width: 4, Height: 4, Kind: ColorLayer})
	if _, err := h.c.QueueBuffer(h.ctx, cl, solid(4, 4, red)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("QueueBuffer() on color layer = %v, want ErrInvalidHandle", err)
	}

	l := h.layer("buf", 4, 4, NoLayer)
	if err := h.client.DestroyLayer(h.ctx, l); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.QueueBuffer(h.ctx, l, solid(4, 4, red)); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("QueueBuffer() on destroyed layer = %v, want ErrInvalidHandle", err)
	}
	if _, err := h.c.NextFrameNumber(l); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("NextFrameNumber() on destroyed layer = %v, want ErrInvalidHandle", err)
	}
}

func TestFrameNumbers(t *testing.T) {
	h := newHarness(t)
	l := h.layer("buf", 4, 4, NoLayer)

	for want := uint64(1); want <= 4; want++ {
		next, err := h.c.NextFrameNumber(l)
		if err != nil {
			t.Fatal(err)
		}
		if next != want {
			t.Fatalf("NextFrameNumber() = %d, want %d", next, want)
		}
		if got := h.queue(l, solid(4, 4, red)); got != want {
			t.Fatalf("QueueBuffer() = %d, want %d", got, want)
		}
	}
	if got := h.info(l).FrameNumber; got != 4 {
		t.Errorf("latched frame = %d, want 4", got)
	}
}

func TestBufferLatchesBeforeLaterRequests(t *testing.T) {
	h := newHarness(t)
	l := h.layer("buf", 32, 32, NoLayer)

	// The buffer was queued first, so the resize sees a latched buffer.
	h.queue(l, solid(32, 32, red))
	h.apply(NewTransaction().SetSize(l, 64, 64))
	info := h.info(l)
	if !info.Resizing || info.FrameNumber != 1 {
		t.Errorf("after queue and resize: Resizing = %v, FrameNumber = %d, want true, 1", info.Resizing, info.FrameNumber)
	}

	m := h.layer("marked", 16, 16, NoLayer)
	h.queue(m, solid(16, 16, green))
	h.apply(NewTransaction().SetPosition(m, 100, 100).SetGeometryAppliesWithResize(m))
	if got := h.info(m); got.Position.X != 0 || got.Position.Y != 0 {
		t.Errorf("position = %v, want (0, 0) until a resize latches", got.Position)
	}
}

func TestFrameNumberBase(t *testing.T) {
	h := newHarness(t, func(o *options) { o.config.FrameNumberBase = 100 })
	l := h.layer("buf", 4, 4, NoLayer)
	if got := h.queue(l, solid(4, 4, red)); got != 100 {
		t.Errorf("first frame number = %d, want 100", got)
	}
}

func TestApplyErrorUnwrap(t *testing.T) {
	s := newChildScene(t)
	gone := s.layer("gone", 4, 4, NoLayer)
	if err := s.client.DestroyLayer(s.ctx, gone); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		tx   *Transaction
		want error
	}{
		{"destroyed layer", NewTransaction().Show(gone), ErrInvalidHandle},
		{"cycle", NewTransaction().Reparent(s.fg, s.child), ErrInvalidHierarchy},
		{"self parent", NewTransaction().Reparent(s.fg, s.fg), ErrInvalidHierarchy},
		{"relative to destroyed", NewTransaction().SetRelativeLayer(s.fg, gone, 1), ErrDanglingReference},
		{"unknown output", NewTransaction().SetDisplayLayerStack("nope", 1), ErrUnknownOutput},
		{"negative size", NewTransaction().SetSize(s.fg, 1, -1), ErrInvalidSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.c.ApplySync(s.ctx, tt.tx)
			if !errors.Is(err, tt.want) {
				t.Fatalf("ApplySync() = %v, want %v", err, tt.want)
			}
			var ae *ApplyError
			if !errors.As(err, &ae) || len(ae.Errs) != 1 {
				t.Errorf("ApplySync() = %#v, want one dropped operation", err)
			}
		})
	}
	// Nothing above changed the scene.
	sh := s.shot()
	sh.expectChild(64, 64)
	sh.expectFG(80, 80)
}

func TestApplyErrorMessage(t *testing.T) {
	err := &ApplyError{Errs: []error{errors.New("a"), errors.New("b")}}
	if got, want := err.Error(), "compositor: dropped operations: a; b"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if newApplyError(nil) != nil {
		t.Error("newApplyError(nil) != nil")
	}
}

func TestDroppedOperationsAreLogged(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	SetLogger(slog.New(slog.NewTextHandler(&lockedWriter{mu: &mu, w: &buf}, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { SetLogger(nil) })

	h := newHarness(t)
	if err := h.c.Apply(h.ctx, NewTransaction().Hide(Handle(77))); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Flush(h.ctx); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	if !strings.Contains(out, "operation dropped") || !strings.Contains(out, "#77") {
		t.Errorf("log = %q, want a dropped operation on #77", out)
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func TestDisposeOrphansForeignChildren(t *testing.T) {
	s := newUpdateScene(t)
	other := s.c.NewClient()
	if other.ID() == s.client.ID() {
		t.Fatal("clients share an ID")
	}
	kid := s.create(other, LayerConfig{Name: "foreign", Width: 10, Height: 10, Parent: s.fg})
	s.fill(kid, kidColor)
	s.apply(NewTransaction().SetPosition(kid, 10, 10))
	s.shot().expectChild(74, 74)

	if err := s.client.Dispose(s.ctx); err != nil {
		t.Fatalf("Dispose() = %v", err)
	}
	for _, l := range []Handle{s.bg, s.fg, s.sync} {
		if _, err := s.c.Layer(s.ctx, l); !errors.Is(err, ErrInvalidHandle) {
			t.Errorf("Layer(%v) after Dispose = %v, want ErrInvalidHandle", l, err)
		}
	}

	// The foreign child outlives its parent as a root with its local
	// position.
	info := s.info(kid)
	if info.Parent != NoLayer {
		t.Errorf("orphan parent = %v, want none", info.Parent)
	}
	sh := s.shot()
	sh.expectChild(10, 10)
	sh.expectPixel(74, 74, black)
}

func TestDestroyLayerOfOtherClient(t *testing.T) {
	h := newHarness(t)
	other := h.c.NewClient()
	l := h.create(other, LayerConfig{Name: "foreign", Width: 4, Height: 4})

	if err := h.client.DestroyLayer(h.ctx, l); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("DestroyLayer() by another client = %v, want ErrInvalidHandle", err)
	}
	if _, err := h.c.Layer(h.ctx, l); err != nil {
		t.Errorf("layer gone after a rejected destroy: %v", err)
	}
	if err := other.DestroyLayer(h.ctx, l); err != nil {
		t.Errorf("DestroyLayer() by owner = %v", err)
	}
}

func TestDestroyParentKeepsChildren(t *testing.T) {
	s := newChildScene(t)
	s.apply(NewTransaction().SetPosition(s.child, 10, 10))

	if err := s.client.DestroyLayer(s.ctx, s.fg); err != nil {
		t.Fatal(err)
	}
	// The orphan is a root with its own z of 0, so bg now covers it.
	order, err := s.c.DrawOrder(s.ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Handle{s.child, s.bg, s.sync}, order); diff != "" {
		t.Errorf("DrawOrder() mismatch (-want +got):\n%s", diff)
	}
	sh := s.shot()
	sh.expectBG(10, 10)
	sh.expectBG(74, 74)

	s.apply(NewTransaction().SetLayer(s.child, math.MaxInt32))
	sh = s.shot()
	sh.expectChild(10, 10)
	sh.expectChild(19, 19)
	sh.expectBG(20, 20)
	sh.expectBG(74, 74)
}

func TestDrawOrder(t *testing.T) {
	h := newHarness(t)
	a := h.layer("a", 4, 4, NoLayer)
	b := h.layer("b", 4, 4, NoLayer)
	c := h.layer("c", 4, 4, NoLayer)
	ca := h.layer("child of a", 4, 4, a)
	h.create(h.client, LayerConfig{Name: "hidden", Width: 4, Height: 4, Hidden: true})
	other := h.layer("other stack", 4, 4, NoLayer)

	tests := []struct {
		name string
		tx   *Transaction
		want []Handle
	}{
		{
			name: "creation order",
			tx:   NewTransaction().SetLayerStack(other, 1),
			want: []Handle{a, ca, b, c},
		},
		{
			name: "absolute z",
			tx:   NewTransaction().SetLayer(a, 2).SetLayer(b, 1).SetLayer(c, -1),
			want: []Handle{c, b, a, ca},
		},
		{
			name: "relative behind",
			tx:   NewTransaction().SetRelativeLayer(a, c, -1),
			want: []Handle{a, ca, c, b},
		},
		{
			name: "relative in front",
			tx:   NewTransaction().SetRelativeLayer(b, c, 1).SetRelativeLayer(a, c, 2),
			want: []Handle{c, b, a, ca},
		},
		{
			name: "relative cycle",
			tx:   NewTransaction().SetRelativeLayer(c, a, 1),
			want: []Handle{c, b, a, ca},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.apply(tt.tx)
			got, err := h.c.DrawOrder(h.ctx, "main")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DrawOrder() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := h.c.DrawOrder(h.ctx, "nope"); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("DrawOrder(nope) = %v, want ErrUnknownOutput", err)
	}
}

func TestOutputs(t *testing.T) {
	h := newHarness(t, WithOutput(OutputConfig{ID: "side", Width: 32, Height: 16, LayerStack: 1}))

	want := []Output{
		{ID: "main", Width: displaySize, Height: displaySize, RefreshInterval: time.Second / 60},
		{ID: "side", Width: 32, Height: 16, LayerStack: 1},
	}
	if diff := cmp.Diff(want, h.c.Outputs()); diff != "" {
		t.Errorf("Outputs() mismatch (-want +got):\n%s", diff)
	}
	if _, err := h.c.Output("nope"); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("Output(nope) = %v, want ErrUnknownOutput", err)
	}

	l := h.layer("side only", 8, 8, NoLayer)
	h.fill(l, red)
	h.apply(NewTransaction().SetLayerStack(l, 1))

	side, err := h.c.Capture(h.ctx, "side")
	if err != nil {
		t.Fatal(err)
	}
	if got := side.Bounds(); got != image.Rect(0, 0, 32, 16) {
		t.Errorf("side capture bounds = %v", got)
	}
	if got := side.RGBAAt(1, 1); got != red {
		t.Errorf("side pixel = %v, want %v", got, red)
	}
	h.shot().expectPixel(1, 1, black)

	if _, err := h.c.Capture(h.ctx, "nope"); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("Capture(nope) = %v, want ErrUnknownOutput", err)
	}
}

func TestLastFrame(t *testing.T) {
	h := newHarness(t, func(o *options) { o.config.Background = "#102030" })
	if err := h.c.Flush(h.ctx); err != nil {
		t.Fatal(err)
	}
	img, frame, err := h.c.LastFrame("main")
	if err != nil {
		t.Fatal(err)
	}
	if img == nil || frame == 0 {
		t.Fatalf("LastFrame() = %v, %d, want a composited frame", img, frame)
	}
	if got, want := img.RGBAAt(0, 0), (color.RGBA{0x10, 0x20, 0x30, 0xff}); got != want {
		t.Errorf("background = %v, want %v", got, want)
	}

	if err := h.c.Flush(h.ctx); err != nil {
		t.Fatal(err)
	}
	if _, next, _ := h.c.LastFrame("main"); next <= frame {
		t.Errorf("frame number did not advance: %d then %d", frame, next)
	}
	if _, _, err := h.c.LastFrame("nope"); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("LastFrame(nope) = %v, want ErrUnknownOutput", err)
	}
}

func TestConcurrentClients(t *testing.T) {
	h := newHarness(t)
	const clients = 8

	g, ctx := errgroup.WithContext(h.ctx)
	for i := range clients {
		g.Go(func() error {
			cl := h.c.NewClient()
			l, err := cl.CreateLayer(ctx, LayerConfig{Name: fmt.Sprintf("client %d", i), Width: 8, Height: 8})
			if err != nil {
				return err
			}
			for range 5 {
				if _, err := h.c.QueueBuffer(ctx, l, solid(8, 8, red)); err != nil {
					return err
				}
			}
			tx := NewTransaction().SetPosition(l, float64(i*8), 0).SetLayer(l, int32(i))
			return h.c.ApplySync(ctx, tx)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	order, err := h.c.DrawOrder(h.ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != clients {
		t.Errorf("DrawOrder() has %d layers, want %d", len(order), clients)
	}
	h.shot().expectColor(image.Rect(0, 0, clients*8, 8), red)
}

func TestApplyIsAtomic(t *testing.T) {
	s := newUpdateScene(t)
	s.apply(NewTransaction().SetAlpha(s.fg, 0.5))

	// A reader never sees one half of a transaction.
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		for i := range 20 {
			x := float64(64 + i%2*64)
			tx := NewTransaction().SetPosition(s.fg, x, 0).SetAlpha(s.fg, x/128)
			if err := s.c.Apply(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range 20 {
			info, err := s.c.Layer(ctx, s.fg)
			if err != nil {
				return err
			}
			if info.Alpha != info.Position.X/128 {
				return fmt.Errorf("half-applied transaction: position %v, alpha %v", info.Position, info.Alpha)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
