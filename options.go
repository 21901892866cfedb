package compositor

import (
	"github.com/gogpu/compositor/render"
)

// Option configures a Compositor during creation.
//
// Example:
//
//	// One 1080p output, software composition
//	c, err := compositor.New(compositor.WithOutput(compositor.OutputConfig{
//	    ID: "main", Width: 1920, Height: 1080, RefreshHz: 60,
//	}))
type Option func(*options)

// options holds optional configuration for Compositor creation.
type options struct {
	config     Config
	rasterizer render.Rasterizer
}

// defaultOptions returns the default compositor options.
func defaultOptions() options {
	return options{
		config:     DefaultConfig(),
		rasterizer: nil, // Will be set to SoftwareRasterizer if nil
	}
}

// WithConfig replaces the whole configuration. Options applied after it
// modify the given configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		cfg.Outputs = append([]OutputConfig(nil), cfg.Outputs...)
		o.config = cfg
	}
}

// WithRasterizer sets the rasterizer that turns draw lists into pixels.
// Use this to plug in a hardware backend.
func WithRasterizer(r render.Rasterizer) Option {
	return func(o *options) {
		o.rasterizer = r
	}
}

// WithOutput adds an output, replacing any configured output with the same
// ID.
func WithOutput(out OutputConfig) Option {
	return func(o *options) {
		for i := range o.config.Outputs {
			if o.config.Outputs[i].ID == out.ID {
				o.config.Outputs[i] = out
				return
			}
		}
		o.config.Outputs = append(o.config.Outputs, out)
	}
}

// WithDetachPolicy sets which children detach-children detaches.
func WithDetachPolicy(p DetachPolicy) Option {
	return func(o *options) {
		o.config.DetachPolicy = p
	}
}
