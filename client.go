package compositor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Client owns layers. Layers are tagged with the client that created them;
// disposing the client destroys them, and the detach policy may compare
// owners.
type Client struct {
	c  *Compositor
	id uuid.UUID
}

// NewClient registers a new client with a random ID.
func (c *Compositor) NewClient() *Client {
	return &Client{c: c, id: uuid.New()}
}

// ID returns the client's ID.
func (cl *Client) ID() uuid.UUID {
	return cl.id
}

// CreateLayer creates a layer owned by the client and returns its handle
// once the layer exists.
func (cl *Client) CreateLayer(ctx context.Context, cfg LayerConfig) (Handle, error) {
	var (
		h   Handle
		err error
	)
	serr := cl.c.submit(ctx, &request{run: func() {
		h, err = cl.c.createLayer(cl.id, cfg)
	}}, true)
	if serr != nil {
		return NoLayer, serr
	}
	return h, err
}

// DestroyLayer destroys a layer the client owns. Its children are not
// destroyed; they become root layers. Layers owned by another client are
// rejected with ErrInvalidHandle.
func (cl *Client) DestroyLayer(ctx context.Context, h Handle) error {
	var err error
	serr := cl.c.submit(ctx, &request{run: func() {
		if l, ok := cl.c.tree.Get(h); ok && l.Owner != cl.id {
			err = fmt.Errorf("destroy %v: owned by another client: %w", h, ErrInvalidHandle)
			return
		}
		err = cl.c.destroyLayer(h)
	}}, true)
	if serr != nil {
		return serr
	}
	return err
}

// Dispose destroys every layer the client owns. Children owned by other
// clients survive as root layers.
func (cl *Client) Dispose(ctx context.Context) error {
	var errs []error
	serr := cl.c.submit(ctx, &request{run: func() {
		hs := cl.c.tree.OwnedBy(cl.id)
		for _, h := range hs {
			if err := cl.c.destroyLayer(h); err != nil {
				Logger().Warn("dispose: layer not destroyed", "client", cl.id, "layer", h, "err", err)
				errs = append(errs, err)
			}
		}
		Logger().Info("client disposed", "client", cl.id, "layers", len(hs))
	}}, true)
	if serr != nil {
		return serr
	}
	return errors.Join(errs...)
}
