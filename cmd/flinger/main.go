// Command flinger runs a scene script against a software compositor and
// writes the captures it takes as PNG files.
//
//	flinger -config compositor.toml -out shots scene.fl
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/script"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			color.New(color.FgRed).Fprintln(os.Stderr, "flinger:", err)
		}
		os.Exit(1)
	}
}

type settings struct {
	config  string
	out     string
	scale   int
	verbose bool
	noColor bool
}

func parseFlags(args []string, stderr io.Writer) (settings, []string, error) {
	var s settings
	fs := flag.NewFlagSet("flinger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&s.config, "config", "", "compositor config file (.toml, .yaml)")
	fs.StringVar(&s.out, "out", ".", "directory captures are written to")
	fs.IntVar(&s.scale, "scale", 1, "integer upscale factor for captures")
	fs.BoolVar(&s.verbose, "v", false, "log compositor activity")
	fs.BoolVar(&s.noColor, "no-color", false, "disable colored output")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: flinger [flags] script...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return s, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return s, nil, errors.New("no script given")
	}
	if s.scale < 1 {
		return s, nil, fmt.Errorf("invalid -scale %d", s.scale)
	}
	return s, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	s, files, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if s.noColor {
		color.NoColor = true
	}
	if s.verbose {
		compositor.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	scripts := make([]*script.Script, len(files))
	for i, name := range files {
		sc, err := parseFile(name)
		if err != nil {
			return err
		}
		scripts[i] = sc
	}

	opts, err := options(s.config, scripts)
	if err != nil {
		return err
	}
	c, err := compositor.New(opts...)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	shots := &captures{}
	r := script.NewRunner(c, shots.add)
	for i, sc := range scripts {
		if err := r.Run(ctx, sc); err != nil {
			return fmt.Errorf("%s: %w", files[i], err)
		}
		color.New(color.FgGreen).Fprintf(stdout, "ran %s", files[i])
		fmt.Fprintf(stdout, " (%d statements)\n", len(sc.Statements))
	}

	if err := shots.write(ctx, s.out, s.scale); err != nil {
		return err
	}
	for _, shot := range shots.list {
		b := shot.img.Bounds()
		fmt.Fprintf(stdout, "  %s %dx%d\n", color.CyanString(shot.path(s.out)), b.Dx()*s.scale, b.Dy()*s.scale)
	}
	return nil
}

func parseFile(name string) (*script.Script, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return script.Parse(filepath.Base(name), f)
}

// options builds the compositor options: the config file first, then the
// outputs every script declares.
func options(config string, scripts []*script.Script) ([]compositor.Option, error) {
	var opts []compositor.Option
	if config != "" {
		cfg, err := compositor.LoadConfig(config)
		if err != nil {
			return nil, err
		}
		opts = append(opts, compositor.WithConfig(cfg))
	}
	for _, sc := range scripts {
		for _, o := range sc.Outputs() {
			opts = append(opts, compositor.WithOutput(o))
		}
	}
	return opts, nil
}

type capture struct {
	file string
	img  *image.RGBA
}

func (c capture) path(dir string) string {
	if filepath.IsAbs(c.file) {
		return c.file
	}
	return filepath.Join(dir, c.file)
}

// captures collects images in script order. A later capture to the same
// file replaces the earlier one.
type captures struct {
	mu   sync.Mutex
	list []capture
}

func (cs *captures) add(file string, img *image.RGBA) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for i := range cs.list {
		if cs.list[i].file == file {
			cs.list[i].img = img
			return nil
		}
	}
	cs.list = append(cs.list, capture{file: file, img: img})
	return nil
}

func (cs *captures) write(ctx context.Context, dir string, scale int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, shot := range cs.list {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writePNG(shot.path(dir), upscale(shot.img, scale))
		})
	}
	return g.Wait()
}

// upscale enlarges img by an integer factor without filtering, so each
// composed pixel stays a solid block.
func upscale(img *image.RGBA, scale int) image.Image {
	if scale <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
