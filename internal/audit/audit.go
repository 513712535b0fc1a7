package audit

import "context"

// Sink receives emitted events.
type Sink[E any] interface {
	Emit(ctx context.Context, event E)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc[E any] func(ctx context.Context, event E)

func (f SinkFunc[E]) Emit(ctx context.Context, event E) { f(ctx, event) }

type noOpSink[E any] struct{}

func (noOpSink[E]) Emit(context.Context, E) {}
