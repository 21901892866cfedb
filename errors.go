package compositor

import (
	"errors"
	"strings"

	"github.com/gogpu/compositor/internal/layertree"
	"github.com/gogpu/compositor/internal/txn"
	"github.com/gogpu/compositor/render"
)

var (
	// ErrInvalidHandle is returned for operations on unknown or destroyed layers.
	ErrInvalidHandle = layertree.ErrInvalidHandle

	// ErrInvalidHierarchy is returned when a reparent would create a cycle.
	ErrInvalidHierarchy = layertree.ErrInvalidHierarchy

	// ErrInvalidSize is returned for negative layer sizes.
	ErrInvalidSize = layertree.ErrInvalidSize

	// ErrDanglingReference is returned when an operation names a layer
	// other than the one it modifies and that layer does not exist.
	ErrDanglingReference = txn.ErrDanglingReference

	// ErrUnsupportedFormat is returned for layer formats the rasterizer
	// cannot sample.
	ErrUnsupportedFormat = render.ErrUnsupportedFormat

	// ErrClosed is returned once the compositor has been stopped.
	ErrClosed = errors.New("compositor: closed")

	// ErrNotStarted is returned for requests made before Start.
	ErrNotStarted = errors.New("compositor: not started")

	// ErrUnknownOutput is returned for output IDs that are not configured.
	ErrUnknownOutput = errors.New("compositor: unknown output")

	// ErrInvalidConfig is returned by Config.Validate and LoadConfig.
	ErrInvalidConfig = errors.New("compositor: invalid config")
)

// ApplyError lists the operations of a transaction that were dropped.
// The other operations of the transaction were still applied.
type ApplyError struct {
	Errs []error
}

func newApplyError(errs []*txn.OpError) error {
	if len(errs) == 0 {
		return nil
	}
	e := &ApplyError{Errs: make([]error, len(errs))}
	for i, err := range errs {
		e.Errs[i] = err
	}
	return e
}

func (e *ApplyError) Error() string {
	var b strings.Builder
	b.WriteString("compositor: dropped operations: ")
	for i, err := range e.Errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap lets errors.Is and errors.As see every dropped operation.
func (e *ApplyError) Unwrap() []error {
	return e.Errs
}
