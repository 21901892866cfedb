package compositor

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

var (
	red      = color.RGBA{255, 0, 0, 255}
	green    = color.RGBA{0, 255, 0, 255}
	blue     = color.RGBA{0, 0, 255, 255}
	black    = color.RGBA{0, 0, 0, 255}
	bgColor  = color.RGBA{63, 63, 195, 255}
	fgColor  = color.RGBA{195, 63, 63, 255}
	kidColor = color.RGBA{200, 200, 200, 255}
)

const (
	displaySize = 256
	zBase       = math.MaxInt32 - 256
)

// harness runs a started compositor with one displaySize x displaySize
// output and a single client.
type harness struct {
	t      *testing.T
	ctx    context.Context
	c      *Compositor
	client *Client
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	opts = append([]Option{
		WithOutput(OutputConfig{ID: "main", Width: displaySize, Height: displaySize, RefreshHz: 60}),
	}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	ctx := t.Context()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return &harness{t: t, ctx: ctx, c: c, client: c.NewClient()}
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func (h *harness) create(cl *Client, cfg LayerConfig) Handle {
	h.t.Helper()
	l, err := cl.CreateLayer(h.ctx, cfg)
	if err != nil {
		h.t.Fatalf("CreateLayer(%q) = %v", cfg.Name, err)
	}
	return l
}

// layer creates a buffer layer owned by the harness client.
func (h *harness) layer(name string, w, hgt int, parent Handle) Handle {
	h.t.Helper()
	return h.create(h.client, LayerConfig{Name: name, Width: w, Height: hgt, Parent: parent})
}

// fill queues a buffer of the layer's requested size.
func (h *harness) fill(l Handle, c color.RGBA) {
	h.t.Helper()
	info := h.info(l)
	h.queue(l, solid(info.RequestedSize.W, info.RequestedSize.H, c))
}

func (h *harness) queue(l Handle, img *image.RGBA) uint64 {
	h.t.Helper()
	frame, err := h.c.QueueBuffer(h.ctx, l, img)
	if err != nil {
		h.t.Fatalf("QueueBuffer(%v) = %v", l, err)
	}
	return frame
}

func (h *harness) info(l Handle) LayerInfo {
	h.t.Helper()
	info, err := h.c.Layer(h.ctx, l)
	if err != nil {
		h.t.Fatalf("Layer(%v) = %v", l, err)
	}
	return info
}

// apply applies t synchronously and fails on any dropped operation.
func (h *harness) apply(t *Transaction) {
	h.t.Helper()
	if err := h.c.ApplySync(h.ctx, t); err != nil {
		h.t.Fatalf("ApplySync() = %v", err)
	}
}

func (h *harness) shot() *shot {
	h.t.Helper()
	img, err := h.c.Capture(h.ctx, "main")
	if err != nil {
		h.t.Fatalf("Capture() = %v", err)
	}
	return &shot{t: h.t, img: img}
}

func (h *harness) shotRange(zMin, zMax int32) *shot {
	h.t.Helper()
	img, err := h.c.CaptureOutput(h.ctx, "main", zMin, zMax)
	if err != nil {
		h.t.Fatalf("CaptureOutput() = %v", err)
	}
	return &shot{t: h.t, img: img}
}

func (h *harness) shotLayer(l Handle) *shot {
	h.t.Helper()
	img, err := h.c.CaptureSubtree(h.ctx, l)
	if err != nil {
		h.t.Fatalf("CaptureSubtree(%v) = %v", l, err)
	}
	return &shot{t: h.t, img: img}
}

type shot struct {
	t   *testing.T
	img *image.RGBA
}

func (s *shot) expectPixel(x, y int, want color.RGBA) {
	s.t.Helper()
	if got := s.img.RGBAAt(x, y); got != want {
		s.t.Errorf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func (s *shot) expectColor(r image.Rectangle, want color.RGBA) {
	s.t.Helper()
	r = r.Intersect(s.img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if got := s.img.RGBAAt(x, y); got != want {
				s.t.Errorf("pixel (%d,%d) in %v = %v, want %v", x, y, r, got, want)
				return
			}
		}
	}
}

// expectBorder checks the one pixel ring around r that lies in the image.
func (s *shot) expectBorder(r image.Rectangle, want color.RGBA) {
	s.t.Helper()
	ring := r.Inset(-1)
	b := s.img.Bounds()
	for y := ring.Min.Y; y < ring.Max.Y; y++ {
		for x := ring.Min.X; x < ring.Max.X; x++ {
			p := image.Pt(x, y)
			if p.In(r) || !p.In(b) {
				continue
			}
			if got := s.img.RGBAAt(x, y); got != want {
				s.t.Errorf("border pixel (%d,%d) of %v = %v, want %v", x, y, r, got, want)
				return
			}
		}
	}
}

func (s *shot) expectBG(x, y int) { s.t.Helper(); s.expectPixel(x, y, bgColor) }
func (s *shot) expectFG(x, y int) { s.t.Helper(); s.expectPixel(x, y, fgColor) }
func (s *shot) expectChild(x, y int) { s.t.Helper(); s.expectPixel(x, y, kidColor) }

// updateScene is the background, foreground and sync layer setup used by
// the layer update tests.
type updateScene struct {
	*harness
	bg, fg, sync Handle
}

func newUpdateScene(t *testing.T, opts ...Option) *updateScene {
	t.Helper()
	s := &updateScene{harness: newHarness(t, opts...)}
	s.bg = s.layer("bg", displaySize, displaySize, NoLayer)
	s.fill(s.bg, bgColor)
	s.fg = s.layer("fg", 64, 64, NoLayer)
	s.fill(s.fg, fgColor)
	s.sync = s.layer("sync", 1, 1, NoLayer)
	s.fill(s.sync, color.RGBA{31, 31, 31, 255})

	s.apply(NewTransaction().
		SetDisplayLayerStack("main", 0).
		SetLayer(s.bg, math.MaxInt32-2).Show(s.bg).
		SetLayer(s.fg, math.MaxInt32-1).SetPosition(s.fg, 64, 64).Show(s.fg).
		SetLayer(s.sync, math.MaxInt32-1).SetPosition(s.sync, displaySize-2, displaySize-2).Show(s.sync))
	return s
}

// childScene adds a 10x10 child to the foreground layer.
type childScene struct {
	*updateScene
	child Handle
}

func newChildScene(t *testing.T, opts ...Option) *childScene {
	t.Helper()
	s := &childScene{updateScene: newUpdateScene(t, opts...)}
	s.child = s.layer("child", 10, 10, s.fg)
	s.fill(s.child, kidColor)
	s.shot().expectChild(64, 64)
	return s
}
