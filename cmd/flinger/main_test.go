package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const scene = `
output main 16 16
layer bg 16 16
layer fg 4 4
fill bg #0000ff
fill fg #ff0000
tx {
	position fg 8 8
	z fg 1
} sync
capture main "scene.png"
capture-layer fg "fg.png"
`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func rgba(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "scene.fl", scene)
	out := filepath.Join(dir, "shots")

	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"-no-color", "-out", out, "-scale", "2", path}, &stdout, &stderr); err != nil {
		t.Fatalf("run() = %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ran "+path) {
		t.Errorf("stdout = %q", stdout.String())
	}

	img := readPNG(t, filepath.Join(out, "scene.png"))
	if got := img.Bounds(); got != image.Rect(0, 0, 32, 32) {
		t.Fatalf("scene.png bounds = %v, want 32x32", got)
	}
	red := color.RGBA{0xff, 0, 0, 0xff}
	blue := color.RGBA{0, 0, 0xff, 0xff}
	for _, tc := range []struct {
		x, y int
		want color.RGBA
	}{
		{0, 0, blue},
		{15, 15, blue},
		{16, 16, red},
		{23, 23, red},
		{24, 24, blue},
	} {
		if got := rgba(img, tc.x, tc.y); got != tc.want {
			t.Errorf("scene.png (%d,%d) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}

	fg := readPNG(t, filepath.Join(out, "fg.png"))
	if got := fg.Bounds(); got != image.Rect(0, 0, 8, 8) {
		t.Errorf("fg.png bounds = %v, want 8x8", got)
	}
}

func TestRunWithConfig(t *testing.T) {
	dir := t.TempDir()
	config := writeFile(t, dir, "compositor.yaml", "background: \"#00ff00\"\n")
	path := writeFile(t, dir, "empty.fl", "output main 4 4\ncapture main \"empty.png\"\n")

	var stdout, stderr bytes.Buffer
	if err := run(t.Context(), []string{"-no-color", "-config", config, "-out", dir, path}, &stdout, &stderr); err != nil {
		t.Fatalf("run() = %v", err)
	}
	img := readPNG(t, filepath.Join(dir, "empty.png"))
	if got, want := rgba(img, 0, 0), (color.RGBA{0, 0xff, 0, 0xff}); got != want {
		t.Errorf("background = %v, want %v", got, want)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.fl", "fill nope #fff\n")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no script", nil, "no script"},
		{"bad scale", []string{"-scale", "0", bad}, "-scale"},
		{"missing script", []string{filepath.Join(dir, "missing.fl")}, "missing.fl"},
		{"missing config", []string{"-config", filepath.Join(dir, "missing.toml"), bad}, "missing.toml"},
		{"script error", []string{bad}, "bad.fl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(t.Context(), tt.args, &stdout, &stderr)
			if err == nil {
				t.Fatal("run() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("run() = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestCapturesReplaceByFile(t *testing.T) {
	var cs captures
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 2))
	_ = cs.add("x.png", a)
	_ = cs.add("y.png", a)
	_ = cs.add("x.png", b)
	if len(cs.list) != 2 || cs.list[0].img != b {
		t.Errorf("captures = %+v", cs.list)
	}
}
