package conversion

import (
	"context"
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

type State int

const (
	StatePreferred State = iota
	StateFallback
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePreferred:
		return "preferred"
	case StateFallback:
		return "fallback"
	default:
		return "exhausted"
	}
}

// Selector runs a per-call Preferred -> Fallback -> Exhausted sequence over
// two pre-built backends. It holds no mutable state, so concurrent documents
// never observe each other's failures.
type Selector struct {
	preferred Backend
	fallback  Backend
}

// NewSelector builds a selector. fallback may be nil, in which case a
// preferred failure is terminal.
func NewSelector(preferred, fallback Backend) *Selector {
	return &Selector{preferred: preferred, fallback: fallback}
}

func (s *Selector) Backends() []string {
	names := []string{s.preferred.Name()}
	if s.fallback != nil {
		names = append(names, s.fallback.Name())
	}
	return names
}

// Convert tries the preferred backend, then the fallback at most once.
func (s *Selector) Convert(ctx context.Context, in Input) (*Result, error) {
	var (
		state    = StatePreferred
		failures []error
		tried    []string
	)
	logger := logging.From(ctx)

	for {
		var b Backend
		switch state {
		case StatePreferred:
			b = s.preferred
		case StateFallback:
			b = s.fallback
		case StateExhausted:
			return nil, goerr.Wrap(
				fmt.Errorf("%w: %w", core.ErrConversion, errors.Join(failures...)),
				"conversion exhausted",
				goerr.V("file_id", in.FileID),
				goerr.V("backends", tried),
			)
		}

		tried = append(tried, b.Name())
		res, err := convertGuarded(ctx, b, in)
		if err == nil {
			res.Backend = b.Name()
			return res, nil
		}
		failures = append(failures, err)

		next := StateExhausted
		if state == StatePreferred && s.fallback != nil && ctx.Err() == nil {
			next = StateFallback
		}
		logger.Warn("conversion backend failed",
			"backend", b.Name(),
			"state", state.String(),
			"next", next.String(),
			"error", err.Error(),
		)
		state = next
	}
}

// convertGuarded turns a backend panic into an ordinary failure so the
// selector can still move to the next state.
func convertGuarded(ctx context.Context, b Backend, in Input) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = goerr.New("backend panicked", goerr.V("backend", b.Name()), goerr.V("panic", fmt.Sprint(r)))
		}
	}()
	return b.Convert(ctx, in)
}

// RemoteOrLocal builds the configured selector. With a remote URL the remote
// backend is preferred and local is the single fallback; otherwise local
// runs alone.
func RemoteOrLocal(remote *RemoteBackend, local *LocalBackend) *Selector {
	if remote == nil {
		return NewSelector(local, nil)
	}
	return NewSelector(remote, local)
}
