package navigation

import (
	"context"
	"sync"
)

// Default route names used by the client when it redirects.
const (
	RouteLogin    = "login"
	RouteHome     = "home"
	RouteNotFound = "not-found"
)

// NavigateOptions carries the data a router needs to resume the user after
// re-authentication.
type NavigateOptions struct {
	RedirectTarget string
}

// Navigator is the router capability the client drives on failure.
type Navigator interface {
	Navigate(ctx context.Context, route string, opts NavigateOptions)
}

// NavigatorFunc adapts a function to [Navigator].
type NavigatorFunc func(ctx context.Context, route string, opts NavigateOptions)

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, route string, opts NavigateOptions) {
	f(ctx, route, opts)
}

// Nop discards every navigation.
type Nop struct{}

// Navigate does nothing.
func (Nop) Navigate(context.Context, string, NavigateOptions) {}

// Navigation is one recorded call to a [Recorder].
type Navigation struct {
	Route          string
	RedirectTarget string
}

// Recorder is a concurrency-safe [Navigator] that remembers every call.
// Tests and headless callers use it to observe redirects.
type Recorder struct {
	mu    sync.Mutex
	calls []Navigation
}

// Navigate records the call.
func (r *Recorder) Navigate(_ context.Context, route string, opts NavigateOptions) {
	r.mu.Lock()
	r.calls = append(r.calls, Navigation{Route: route, RedirectTarget: opts.RedirectTarget})
	r.mu.Unlock()
}

// Calls returns a copy of the recorded navigations in call order.
func (r *Recorder) Calls() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Navigation, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent navigation.
func (r *Recorder) Last() (Navigation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return Navigation{}, false
	}
	return r.calls[len(r.calls)-1], true
}

// Count returns how many navigations targeted route.
func (r *Recorder) Count(route string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Route == route {
			n++
		}
	}
	return n
}

// Reset forgets all recorded navigations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
