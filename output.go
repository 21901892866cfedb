package compositor

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Output describes a display output.
type Output struct {
	ID              string
	Width, Height   int
	RefreshInterval time.Duration

	// LayerStack is the layer stack the output currently shows.
	LayerStack uint32
}

type output struct {
	cfg   OutputConfig
	stack uint32

	last  *image.RGBA
	frame uint64
}

func (o *output) info() Output {
	return Output{
		ID:              o.cfg.ID,
		Width:           o.cfg.Width,
		Height:          o.cfg.Height,
		RefreshInterval: o.cfg.RefreshInterval(),
		LayerStack:      o.stack,
	}
}

// outputSet holds the outputs. The commit loop writes them; any goroutine
// may read them.
type outputSet struct {
	mu   sync.RWMutex
	byID map[string]*output
	ids  []string
}

func newOutputSet(cfgs []OutputConfig) *outputSet {
	s := &outputSet{byID: make(map[string]*output, len(cfgs))}
	for _, c := range cfgs {
		s.byID[c.ID] = &output{cfg: c, stack: c.LayerStack}
		s.ids = append(s.ids, c.ID)
	}
	return s
}

// SetDisplayLayerStack implements txn.DisplaySetter.
func (s *outputSet) SetDisplayLayerStack(id string, stack uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOutput, id)
	}
	o.stack = stack
	return nil
}

func (s *outputSet) get(id string) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return Output{}, false
	}
	return o.info(), true
}

func (s *outputSet) all() []Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Output, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id].info())
	}
	return out
}

func (s *outputSet) store(id string, img *image.RGBA, frame uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.byID[id]; ok {
		o.last = img
		o.frame = frame
	}
}

func (s *outputSet) last(id string) (*image.RGBA, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownOutput, id)
	}
	return o.last, o.frame, nil
}
