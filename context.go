package authclient

import "context"

type redirectTargetContextKey struct{}
type noRedirectContextKey struct{}

// WithRedirectTarget attaches the view the caller is on, so a login redirect
// can resume there after re-authentication. Without it the request path is
// used.
func WithRedirectTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, redirectTargetContextKey{}, target)
}

// WithoutRedirect disables navigation for calls made with ctx. Session
// clearing still happens.
func WithoutRedirect(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRedirectContextKey{}, true)
}

func redirectTargetFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	target, _ := ctx.Value(redirectTargetContextKey{}).(string)
	return target, target != ""
}

func redirectsDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	disabled, _ := ctx.Value(noRedirectContextKey{}).(bool)
	return disabled
}
