// Package capture turns the resolved layer tree into draw lists for a
// rasterizer: either everything shown on an output or the subtree below a
// single layer.
package capture

import (
	"fmt"
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/internal/layertree"
	"github.com/gogpu/compositor/internal/zorder"
	"github.com/gogpu/compositor/render"
)

// Output builds the draw list of an output of the given size.
func Output(tree *layertree.Tree, width, height int, f zorder.Filter, background render.RGBA) *render.DrawList {
	r := layertree.NewResolver(tree)
	dl := &render.DrawList{Width: width, Height: height, Background: background}
	fill(dl, tree, r, zorder.Resolve(tree, r, f))
	return dl
}

// Subtree builds the draw list of root and its attached descendants, with
// root's own position and transform removed. The list is sized to root's
// bounds.
func Subtree(tree *layertree.Tree, root layertree.Handle, background render.RGBA) (*render.DrawList, error) {
	r := layertree.NewSubtreeResolver(tree, root)
	res, ok := r.Resolve(root)
	if !ok {
		return nil, fmt.Errorf("capture %v: %w", root, layertree.ErrInvalidHandle)
	}

	dl := &render.DrawList{Background: background}
	if !res.Bounds.Empty() {
		minX, minY := math.Floor(res.Bounds.MinX), math.Floor(res.Bounds.MinY)
		dl.Width = int(math.Ceil(res.Bounds.MaxX) - minX)
		dl.Height = int(math.Ceil(res.Bounds.MaxY) - minY)
		fill(dl, tree, r, zorder.Resolve(tree, r, zorder.AllZ(0)))
		shift(dl, -minX, -minY)
	}
	return dl, nil
}

func fill(dl *render.DrawList, tree *layertree.Tree, r *layertree.Resolver, order []layertree.Handle) {
	for _, h := range order {
		l, ok := tree.Get(h)
		if !ok || !l.HasContent() {
			continue
		}
		res, _ := r.Resolve(h)
		e := render.DrawEntry{
			Layer: uint32(h),
			Name:  l.Name,
			Clips: res.Clips,
			Alpha: res.Alpha,
		}
		if l.Kind == layertree.KindColor {
			e.ToOutput = res.LayerTransform
			e.Bounds = res.Bounds
			e.Color = l.Color
		} else {
			b := l.Buffer.Bounds()
			e.ToOutput = res.ContentTransform
			e.Bounds = geom.RectFromSize(geom.Sz(b.Dx(), b.Dy()))
			e.Image = l.Buffer
			e.Format = l.Format
		}
		dl.Add(e)
	}
}

// shift moves every entry of dl by (dx, dy) in output space.
func shift(dl *render.DrawList, dx, dy float64) {
	if dx == 0 && dy == 0 {
		return
	}
	move := geom.Translate(dx, dy)
	back := geom.Translate(-dx, -dy)
	for i := range dl.Entries {
		e := &dl.Entries[i]
		e.ToOutput = move.Multiply(e.ToOutput)
		clips := make([]geom.Clip, len(e.Clips))
		for j, c := range e.Clips {
			clips[j] = geom.Clip{ToLocal: c.ToLocal.Multiply(back), Rect: c.Rect}
		}
		e.Clips = clips
	}
}
