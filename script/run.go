package script

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/render"
)

var (
	// ErrUnknownName is returned for layer and client names a script never
	// declared.
	ErrUnknownName = errors.New("script: unknown name")

	// ErrDuplicateName is returned when a layer name is declared twice.
	ErrDuplicateName = errors.New("script: duplicate name")

	// ErrBadOp is returned for unknown transaction operations and for
	// operations with the wrong arguments.
	ErrBadOp = errors.New("script: bad operation")
)

// DefaultClient is the client that owns layers declared without a client.
const DefaultClient = "default"

// CaptureFunc receives each capture a script takes, with the file name
// the script gave it.
type CaptureFunc func(file string, img *image.RGBA) error

// Outputs returns the outputs the script declares, in order.
func (s *Script) Outputs() []compositor.OutputConfig {
	var out []compositor.OutputConfig
	for _, st := range s.Statements {
		o := st.Output
		if o == nil {
			continue
		}
		cfg := compositor.OutputConfig{ID: o.ID, Width: o.Width, Height: o.Height}
		if o.Stack != nil {
			cfg.LayerStack = *o.Stack
		}
		if o.Hz != nil {
			cfg.RefreshHz = *o.Hz
		}
		out = append(out, cfg)
	}
	return out
}

// Layers returns the number of layers the script declares.
func (s *Script) Layers() int {
	n := 0
	for _, st := range s.Statements {
		if st.Layer != nil {
			n++
		}
	}
	return n
}

// Runner executes scripts against a started compositor. Layer and client
// names persist across Run calls.
type Runner struct {
	c       *compositor.Compositor
	capture CaptureFunc

	clients map[string]*compositor.Client
	layers  map[string]compositor.Handle
	owners  map[string]string
}

// NewRunner creates a runner. A nil capture discards captures.
func NewRunner(c *compositor.Compositor, capture CaptureFunc) *Runner {
	if capture == nil {
		capture = func(string, *image.RGBA) error { return nil }
	}
	return &Runner{
		c:       c,
		capture: capture,
		clients: make(map[string]*compositor.Client),
		layers:  make(map[string]compositor.Handle),
		owners:  make(map[string]string),
	}
}

// Run executes s with a fresh runner.
func Run(ctx context.Context, c *compositor.Compositor, s *Script, capture CaptureFunc) error {
	return NewRunner(c, capture).Run(ctx, s)
}

// Layer returns the handle of a declared layer.
func (r *Runner) Layer(name string) (compositor.Handle, bool) {
	h, ok := r.layers[name]
	return h, ok
}

// Run executes the statements of s in order and stops at the first error.
// Output declarations are skipped; configure them with Script.Outputs
// before the compositor is created.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	for _, st := range s.Statements {
		if err := r.exec(ctx, st); err != nil {
			return fmt.Errorf("%s: %w", st.Pos, err)
		}
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, st *Statement) error {
	switch {
	case st.Output != nil:
		return nil
	case st.Layer != nil:
		return r.createLayer(ctx, st.Layer)
	case st.Fill != nil:
		return r.fill(ctx, st.Fill)
	case st.Tx != nil:
		return r.apply(ctx, st.Tx)
	case st.Flush:
		return r.c.Flush(ctx)
	case st.Capture != nil:
		return r.captureOutput(ctx, st.Capture)
	case st.CaptureLayer != nil:
		h, err := r.layer(st.CaptureLayer.Layer)
		if err != nil {
			return err
		}
		img, err := r.c.CaptureSubtree(ctx, h)
		if err != nil {
			return err
		}
		return r.capture(string(st.CaptureLayer.File), img)
	case st.Destroy != nil:
		h, err := r.layer(st.Destroy.Layer)
		if err != nil {
			return err
		}
		return r.client(r.owners[st.Destroy.Layer]).DestroyLayer(ctx, h)
	case st.Dispose != nil:
		cl, ok := r.clients[st.Dispose.Client]
		if !ok {
			return fmt.Errorf("%w: client %q", ErrUnknownName, st.Dispose.Client)
		}
		return cl.Dispose(ctx)
	}
	return errors.New("empty statement")
}

func (r *Runner) client(name string) *compositor.Client {
	if name == "" {
		name = DefaultClient
	}
	cl, ok := r.clients[name]
	if !ok {
		cl = r.c.NewClient()
		r.clients[name] = cl
	}
	return cl
}

func (r *Runner) layer(name string) (compositor.Handle, error) {
	h, ok := r.layers[name]
	if !ok {
		return compositor.NoLayer, fmt.Errorf("%w: layer %q", ErrUnknownName, name)
	}
	return h, nil
}

func (r *Runner) createLayer(ctx context.Context, ls *LayerStmt) error {
	if _, ok := r.layers[ls.Name]; ok {
		return fmt.Errorf("%w: layer %q", ErrDuplicateName, ls.Name)
	}
	cfg := compositor.LayerConfig{
		Name:   ls.Name,
		Width:  ls.Width,
		Height: ls.Height,
		Hidden: ls.Hidden,
	}
	if ls.Color {
		cfg.Kind = compositor.ColorLayer
	}
	if ls.Parent != "" {
		p, err := r.layer(ls.Parent)
		if err != nil {
			return err
		}
		cfg.Parent = p
	}
	h, err := r.client(ls.Client).CreateLayer(ctx, cfg)
	if err != nil {
		return err
	}
	r.layers[ls.Name] = h
	r.owners[ls.Name] = ls.Client
	return nil
}

func (r *Runner) fill(ctx context.Context, fs *FillStmt) error {
	h, err := r.layer(fs.Layer)
	if err != nil {
		return err
	}
	c, err := render.ParseHex(fs.Color)
	if err != nil {
		return err
	}
	w, hgt := 0, 0
	if fs.Size != nil {
		w, hgt = fs.Size.Width, fs.Size.Height
	} else {
		info, err := r.c.Layer(ctx, h)
		if err != nil {
			return err
		}
		w, hgt = info.RequestedSize.W, info.RequestedSize.H
	}
	_, err = r.c.QueueBuffer(ctx, h, Solid(w, hgt, c))
	return err
}

// Solid returns a w x h buffer filled with c.
func Solid(w, h int, c render.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	px := color.RGBAModel.Convert(c.Color()).(color.RGBA)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = px.R
		img.Pix[i+1] = px.G
		img.Pix[i+2] = px.B
		img.Pix[i+3] = px.A
	}
	return img
}

func (r *Runner) apply(ctx context.Context, ts *TxStmt) error {
	tx := compositor.NewTransaction()
	for _, op := range ts.Ops {
		if err := r.addOp(tx, op); err != nil {
			return fmt.Errorf("%s: %w", op.Pos, err)
		}
	}
	if ts.Sync {
		return r.c.ApplySync(ctx, tx)
	}
	return r.c.Apply(ctx, tx)
}

func (r *Runner) captureOutput(ctx context.Context, cs *CaptureStmt) error {
	var (
		img *image.RGBA
		err error
	)
	if cs.Z != nil {
		img, err = r.c.CaptureOutput(ctx, cs.Output, cs.Z.Min, cs.Z.Max)
	} else {
		img, err = r.c.Capture(ctx, cs.Output)
	}
	if err != nil {
		return err
	}
	return r.capture(string(cs.File), img)
}

// args reads operation arguments. The first problem sticks and later
// reads return zero values.
type args struct {
	r   *Runner
	op  *Op
	err error
}

func (a *args) fail(format string, v ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("%w: %s: %s", ErrBadOp, a.op.Name, fmt.Sprintf(format, v...))
	}
}

func (a *args) count(n ...int) {
	for _, want := range n {
		if len(a.op.Args) == want {
			return
		}
	}
	a.fail("got %d arguments, want %v", len(a.op.Args), n)
}

func (a *args) arg(i int) *Arg {
	if i >= len(a.op.Args) {
		a.fail("missing argument %d", i+1)
		return &Arg{}
	}
	return a.op.Args[i]
}

func (a *args) ident(i int) string {
	arg := a.arg(i)
	if arg.Ident == nil {
		a.fail("argument %d: want a name, got %s", i+1, arg)
		return ""
	}
	return *arg.Ident
}

func (a *args) is(i int, word string) bool {
	return i < len(a.op.Args) && a.op.Args[i].Ident != nil && *a.op.Args[i].Ident == word
}

func (a *args) layer(i int) compositor.Handle {
	name := a.ident(i)
	if a.err != nil {
		return compositor.NoLayer
	}
	h, err := a.r.layer(name)
	if err != nil && a.err == nil {
		a.err = err
	}
	return h
}

// layerOrNone accepts "none" for no layer.
func (a *args) layerOrNone(i int) compositor.Handle {
	if a.is(i, "none") {
		return compositor.NoLayer
	}
	return a.layer(i)
}

func (a *args) num(i int) float64 {
	arg := a.arg(i)
	if arg.Number == nil {
		a.fail("argument %d: want a number, got %s", i+1, arg)
		return 0
	}
	return *arg.Number
}

func (a *args) int(i int) int {
	v := a.num(i)
	if v != math.Trunc(v) {
		a.fail("argument %d: want an integer, got %v", i+1, v)
	}
	return int(v)
}

func (a *args) color(i int) render.RGBA {
	arg := a.arg(i)
	if arg.Color == nil {
		a.fail("argument %d: want a color, got %s", i+1, arg)
		return render.RGBA{}
	}
	c, err := render.ParseHex(*arg.Color)
	if err != nil && a.err == nil {
		a.err = err
	}
	return c
}

// rect reads "x0 y0 x1 y1" or "none".
func (a *args) rect(i int) image.Rectangle {
	if a.is(i, "none") {
		return image.Rectangle{}
	}
	return image.Rect(a.int(i), a.int(i+1), a.int(i+2), a.int(i+3))
}

func (r *Runner) addOp(tx *compositor.Transaction, op *Op) error {
	a := &args{r: r, op: op}
	switch op.Name {
	case "position":
		a.count(3)
		tx.SetPosition(a.layer(0), a.num(1), a.num(2))
	case "size":
		a.count(3)
		tx.SetSize(a.layer(0), a.int(1), a.int(2))
	case "crop":
		a.count(2, 5)
		tx.SetCrop(a.layer(0), a.rect(1))
	case "final-crop":
		a.count(2, 5)
		tx.SetFinalCrop(a.layer(0), a.rect(1))
	case "z":
		a.count(2)
		tx.SetLayer(a.layer(0), int32(a.int(1)))
	case "relative":
		a.count(3)
		tx.SetRelativeLayer(a.layer(0), a.layer(1), int32(a.int(2)))
	case "alpha":
		a.count(2)
		tx.SetAlpha(a.layer(0), a.num(1))
	case "matrix":
		a.count(5)
		tx.SetMatrix(a.layer(0), a.num(1), a.num(2), a.num(3), a.num(4))
	case "stack":
		a.count(2)
		tx.SetLayerStack(a.layer(0), uint32(a.int(1)))
	case "color":
		a.count(2)
		tx.SetColor(a.layer(0), a.color(1))
	case "show":
		a.count(1)
		tx.Show(a.layer(0))
	case "hide":
		a.count(1)
		tx.Hide(a.layer(0))
	case "reparent":
		a.count(2)
		tx.Reparent(a.layer(0), a.layerOrNone(1))
	case "reparent-children":
		a.count(2)
		tx.ReparentChildren(a.layer(0), a.layerOrNone(1))
	case "detach-children":
		a.count(1)
		tx.DetachChildren(a.layer(0))
	case "defer":
		// defer TARGET FRAME, or defer TARGET next [OFFSET]
		a.count(2, 3)
		target := a.layer(0)
		var frame uint64
		if a.is(1, "next") {
			if a.err == nil {
				n, err := r.c.NextFrameNumber(target)
				if err != nil {
					return err
				}
				frame = n
			}
			if len(op.Args) == 3 {
				frame += uint64(a.int(2))
			}
		} else {
			a.count(2)
			frame = uint64(a.int(1))
		}
		tx.DeferTransactionUntil(target, frame)
	case "applies-with-resize":
		a.count(1)
		tx.SetGeometryAppliesWithResize(a.layer(0))
	case "scaling":
		a.count(2)
		mode := compositor.ScaleFreeze
		switch w := a.ident(1); w {
		case "freeze":
		case "window":
			mode = compositor.ScaleToWindow
		default:
			a.fail("scaling mode %q: want freeze or window", w)
		}
		tx.SetOverrideScalingMode(a.layer(0), mode)
	case "display":
		a.count(2)
		tx.SetDisplayLayerStack(a.ident(0), uint32(a.int(1)))
	default:
		return fmt.Errorf("%w: %q", ErrBadOp, op.Name)
	}
	return a.err
}
