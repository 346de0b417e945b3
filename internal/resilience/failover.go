package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [Failover] produced a result.
var ErrAllFailed = errors.New("all backends failed")

type backend[T any] struct {
	value   T
	breaker *Breaker
}

// Failover tries backends of the same kind in registration order, skipping
// those whose breaker is open. Context cancellation stops the walk and is not
// held against the backend that observed it.
//
// Backends must be added before the first call to [Call]; afterwards the
// group is safe for concurrent use.
type Failover[T any] struct {
	cfg      BreakerConfig
	backends []backend[T]
}

// NewFailover creates an empty group whose breakers use cfg.
func NewFailover[T any](cfg BreakerConfig) *Failover[T] {
	return &Failover[T]{cfg: cfg}
}

// Add appends a backend.
func (f *Failover[T]) Add(name string, v T) {
	f.backends = append(f.backends, backend[T]{value: v, breaker: NewBreaker(name, f.cfg)})
}

// Len returns the number of backends.
func (f *Failover[T]) Len() int { return len(f.backends) }

// States reports each backend's breaker state keyed by name.
func (f *Failover[T]) States() map[string]State {
	out := make(map[string]State, len(f.backends))
	for _, b := range f.backends {
		out[b.breaker.Name()] = b.breaker.State()
	}
	return out
}

// Call runs fn against each backend until one succeeds.
func Call[T, R any](ctx context.Context, f *Failover[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, b := range f.backends {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		var out R
		err := b.breaker.Do(func() error {
			var err error
			out, err = fn(ctx, b.value)
			return err
		}, func(err error) bool { return ctx.Err() == nil })
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend with open circuit", "backend", b.breaker.Name())
		} else {
			slog.Warn("backend failed, trying next", "backend", b.breaker.Name(), "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.breaker.Name(), err))
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
