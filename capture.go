package compositor

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/compositor/internal/capture"
	"github.com/gogpu/compositor/internal/zorder"
	"github.com/gogpu/compositor/render"
)

// Capture composes everything an output shows into a new image.
func (c *Compositor) Capture(ctx context.Context, outputID string) (*image.RGBA, error) {
	return c.CaptureOutput(ctx, outputID, math.MinInt32, math.MaxInt32)
}

// CaptureOutput composes an output into a new image, keeping only layer
// groups whose root has an absolute z in [zMin, zMax]. Layers drawn as
// children or relative to a kept root are kept with it.
//
// The capture reflects every request submitted before it, including
// buffers queued before the call.
func (c *Compositor) CaptureOutput(ctx context.Context, outputID string, zMin, zMax int32) (*image.RGBA, error) {
	if _, ok := c.outputs.get(outputID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, outputID)
	}
	var (
		img *image.RGBA
		err error
	)
	serr := c.submit(ctx, &request{read: func() {
		o, _ := c.outputs.get(outputID)
		f := zorder.Filter{LayerStack: o.LayerStack, ZMin: zMin, ZMax: zMax}
		img, err = c.rasterizer.Composite(capture.Output(c.tree, o.Width, o.Height, f, c.background))
	}}, true)
	if serr != nil {
		return nil, serr
	}
	return img, err
}

// CaptureSubtree composes layer h and everything attached below it into a
// new image the size of h's bounds. h's own position and transform are
// not applied; hidden layers are still skipped. Uncovered pixels are
// transparent.
func (c *Compositor) CaptureSubtree(ctx context.Context, h Handle) (*image.RGBA, error) {
	var (
		img *image.RGBA
		err error
	)
	serr := c.submit(ctx, &request{read: func() {
		var dl *render.DrawList
		dl, err = capture.Subtree(c.tree, h, render.Transparent)
		if err != nil {
			return
		}
		img, err = c.rasterizer.Composite(dl)
	}}, true)
	if serr != nil {
		return nil, serr
	}
	return img, err
}
