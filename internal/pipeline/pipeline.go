package pipeline

import "context"

// Handler executes one attempt of a call and returns its outcome.
type Handler[C, R any] func(ctx context.Context, call C) (R, error)

// Middleware wraps a Handler with request or response transformations.
type Middleware[C, R any] func(next Handler[C, R]) Handler[C, R]

// Chain composes middlewares around terminal. The first middleware is the
// outermost: it sees the call first and the outcome last.
func Chain[C, R any](terminal Handler[C, R], middlewares ...Middleware[C, R]) Handler[C, R] {
	h := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		h = middlewares[i](h)
	}
	return h
}

// Func adapts a plain pre-send hook into a Middleware. The hook may replace
// the call before it is forwarded; returning an error short-circuits the chain.
func Func[C, R any](before func(ctx context.Context, call C) (C, error)) Middleware[C, R] {
	return func(next Handler[C, R]) Handler[C, R] {
		return func(ctx context.Context, call C) (R, error) {
			next2, err := before(ctx, call)
			if err != nil {
				var zero R
				return zero, err
			}
			return next(ctx, next2)
		}
	}
}
