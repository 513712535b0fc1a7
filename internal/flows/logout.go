package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	IsAuthenticated func() bool
	Invalidate      func(context.Context) error
	Clear           func(context.Context)
	Warn            func(string, ...any)
}

// LogoutResult reports whether the server-side invalidation ran and how it
// ended. The local session is always cleared.
type LogoutResult struct {
	ServerCalled bool
	ServerErr    error
}

// RunLogout performs a best-effort server invalidation and then clears the
// local session regardless of its outcome.
func RunLogout(ctx context.Context, deps LogoutDeps) (result LogoutResult) {
	defer deps.Clear(ctx)

	if deps.Invalidate == nil || deps.IsAuthenticated == nil || !deps.IsAuthenticated() {
		return result
	}

	result.ServerCalled = true
	result.ServerErr = deps.Invalidate(ctx)
	if result.ServerErr != nil && deps.Warn != nil {
		deps.Warn("authclient: logout request failed", "error", result.ServerErr)
	}
	return result
}
