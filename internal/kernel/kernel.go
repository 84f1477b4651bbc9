// Package kernel implements the middleware composition kernel: it layers
// request/response transforms around a terminal operation with Koa-style
// onion semantics.
//
// Given layers [L1, L2, ..., Ln] and a terminal operation T, Compose builds
// a single callable C such that
//
//	C(req) = L1(req, r -> L2(r, r' -> ... Ln(r'', T)))
//
// The first layer is outermost: it is entered first and exited last. This
// ordering is load-bearing for the proxy — see internal/middleware for why
// placing audit outside pii (rather than the reverse) is the single most
// important structural invariant in this repository.
package kernel

import (
	"context"
	"errors"
	"fmt"
)

// Next is the continuation a layer calls to hand the request to the rest
// of the onion. It must be called at most once per invocation.
type Next[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Layer transforms a request before calling next and/or transforms the
// result (or error) next produces. A layer may:
//   - mutate req before calling next
//   - short-circuit by returning without calling next at all
//   - observe or transform an error returned by next (wrap it, swallow it,
//     or let it propagate)
//   - mutate the response next returned before returning it itself
type Layer[Req, Resp any] func(ctx context.Context, req Req, next Next[Req, Resp]) (Resp, error)

// ErrDoubleNext is returned when a layer calls its next continuation more
// than once within a single invocation. This is a programming error in a
// layer, not a runtime condition callers should expect to recover from —
// the kernel detects it deterministically rather than silently re-running
// downstream layers.
var ErrDoubleNext = errors.New("kernel: next called more than once in a single layer invocation")

// Compose builds a single callable from an ordered list of layers wrapped
// around a terminal operation. The returned callable is itself a valid
// Next, so pipelines can be composed of sub-pipelines if ever needed.
//
// Work proceeds strictly sequentially through the onion for a single
// invocation of the returned callable — the kernel never parallelizes
// layers for one request. Concurrent calls to the returned callable (for
// independent requests) are safe and share no mutable state of their own;
// any sharing is the responsibility of the layers and terminal operation.
func Compose[Req, Resp any](layers []Layer[Req, Resp], terminal Next[Req, Resp]) Next[Req, Resp] {
	next := terminal
	for i := len(layers) - 1; i >= 0; i-- {
		next = wrap(layers[i], next)
	}
	return next
}

// wrap binds a single layer to the continuation that follows it, guarding
// against a double call to that continuation.
func wrap[Req, Resp any](layer Layer[Req, Resp], downstream Next[Req, Resp]) Next[Req, Resp] {
	return func(ctx context.Context, req Req) (Resp, error) {
		called := false
		guarded := func(ctx context.Context, r Req) (Resp, error) {
			if called {
				var zero Resp
				return zero, fmt.Errorf("%w", ErrDoubleNext)
			}
			called = true
			return downstream(ctx, r)
		}
		return layer(ctx, req, guarded)
	}
}
