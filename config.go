package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/compositor/render"
)

// DetachPolicy selects which children detach-children detaches.
type DetachPolicy string

const (
	// DetachOtherOwners detaches only children owned by a different client
	// than their parent. Children of the parent's own client stay attached.
	DetachOtherOwners DetachPolicy = "owner"

	// DetachAll detaches every child.
	DetachAll DetachPolicy = "all"
)

// OutputConfig describes one display output.
type OutputConfig struct {
	ID         string  `toml:"id" yaml:"id"`
	Width      int     `toml:"width" yaml:"width"`
	Height     int     `toml:"height" yaml:"height"`
	RefreshHz  float64 `toml:"refresh_hz,omitempty" yaml:"refresh_hz,omitempty"`
	LayerStack uint32  `toml:"layer_stack" yaml:"layer_stack"`
}

// RefreshInterval returns the frame interval hint of the output, or zero
// when no refresh rate is configured.
func (o OutputConfig) RefreshInterval() time.Duration {
	if o.RefreshHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / o.RefreshHz)
}

// Config holds compositor settings. It can be loaded from TOML or YAML.
type Config struct {
	Outputs []OutputConfig `toml:"output" yaml:"outputs"`

	// BufferQueueDepth is the number of buffers a producer may queue on a
	// layer before QueueBuffer blocks.
	BufferQueueDepth int `toml:"buffer_queue_depth" yaml:"buffer_queue_depth"`

	// FrameNumberBase is the frame number of the first buffer of each layer.
	FrameNumberBase uint64 `toml:"frame_number_base" yaml:"frame_number_base"`

	DetachPolicy DetachPolicy `toml:"detach_policy" yaml:"detach_policy"`

	// Background is the hex color outputs are cleared to.
	Background string `toml:"background" yaml:"background"`
}

// DefaultConfig returns the configuration used when none is given: one
// 640x480 output named "main" on layer stack 0.
func DefaultConfig() Config {
	return Config{
		Outputs: []OutputConfig{
			{ID: "main", Width: 640, Height: 480, RefreshHz: 60},
		},
		BufferQueueDepth: 3,
		FrameNumberBase:  1,
		DetachPolicy:     DetachOtherOwners,
		Background:       "#000000",
	}
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Outputs) == 0 {
		errs = append(errs, errors.New("no outputs"))
	}
	seen := make(map[string]bool, len(c.Outputs))
	for i, o := range c.Outputs {
		switch {
		case o.ID == "":
			errs = append(errs, fmt.Errorf("output %d: empty id", i))
		case seen[o.ID]:
			errs = append(errs, fmt.Errorf("output %q: duplicate id", o.ID))
		}
		seen[o.ID] = true
		if o.Width <= 0 || o.Height <= 0 {
			errs = append(errs, fmt.Errorf("output %q: invalid size %dx%d", o.ID, o.Width, o.Height))
		}
		if o.RefreshHz < 0 {
			errs = append(errs, fmt.Errorf("output %q: negative refresh rate", o.ID))
		}
	}
	if c.BufferQueueDepth < 1 {
		errs = append(errs, fmt.Errorf("buffer_queue_depth %d: must be at least 1", c.BufferQueueDepth))
	}
	if c.FrameNumberBase < 1 {
		errs = append(errs, errors.New("frame_number_base: must be positive"))
	}
	switch c.DetachPolicy {
	case DetachOtherOwners, DetachAll:
	default:
		errs = append(errs, fmt.Errorf("detach_policy %q: want %q or %q", c.DetachPolicy, DetachOtherOwners, DetachAll))
	}
	if _, err := render.ParseHex(c.Background); err != nil {
		errs = append(errs, fmt.Errorf("background: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// LoadConfig reads a configuration file. The format is chosen by extension:
// .toml, or .yaml/.yml. Fields missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := DecodeConfig(f, format)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeConfig decodes a configuration in the given format ("toml", "yaml"
// or "yml") on top of DefaultConfig and validates it. Unknown keys are
// rejected.
func DecodeConfig(r io.Reader, format string) (Config, error) {
	cfg := DefaultConfig()
	defaults := cfg.Outputs
	cfg.Outputs = nil
	switch format {
	case "toml":
		md, err := toml.NewDecoder(r).Decode(&cfg)
		if err != nil {
			return Config{}, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown keys %v", ErrInvalidConfig, undecoded)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}
	if len(cfg.Outputs) == 0 {
		cfg.Outputs = defaults
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteConfig encodes cfg as TOML.
func WriteConfig(w io.Writer, cfg Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
