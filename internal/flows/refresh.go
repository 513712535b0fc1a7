package flows

import (
	"context"
	"net/http"
)

// FailureKind classifies the outcome of one dispatched attempt.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureUnauthorized
	FailureForbidden
	FailureNotFound
	FailureServer
	FailureRequest
	FailureNetwork
	FailureMalformed
)

// Classify maps a transport outcome to a FailureKind. A non-nil transport
// error wins over any status code.
func Classify(status int, transportErr error) FailureKind {
	if transportErr != nil {
		return FailureNetwork
	}
	switch {
	case status >= 200 && status < 300:
		return FailureNone
	case status == http.StatusUnauthorized:
		return FailureUnauthorized
	case status == http.StatusForbidden:
		return FailureForbidden
	case status == http.StatusNotFound:
		return FailureNotFound
	case status >= 500:
		return FailureServer
	case status >= 300 && status < 500:
		return FailureRequest
	default:
		return FailureMalformed
	}
}

// RouteKind names a redirect destination without binding it to a route name.
type RouteKind int

const (
	RouteLogin RouteKind = iota
	RouteHome
	RouteNotFound
)

// RecoveryOutcome tells the caller which branch of the coordinator ran.
type RecoveryOutcome int

const (
	OutcomePassThrough RecoveryOutcome = iota
	OutcomeRecovered
	OutcomeReplayFailed
	OutcomeRetryExhausted
	OutcomeRefreshFailed
	OutcomeNoRefreshToken
	// OutcomeCanceled means the caller gave up while waiting for the
	// refresh. The session is left alone: the exchange may still land.
	OutcomeCanceled
	// OutcomeSuperseded means a login or logout replaced the session while
	// the refresh was in flight. The newer session is left alone.
	OutcomeSuperseded
	OutcomeForbidden
	OutcomeNotFound
	OutcomeOther
)

// RecoveryDeps captures the collaborators of the refresh coordinator.
type RecoveryDeps[R any] struct {
	HasRefreshToken func() bool
	// TokenChanged reports whether the session already holds a different
	// access token than the one the failed attempt carried.
	TokenChanged func() bool
	Refresh      func(context.Context) error
	// Superseded reports whether a refresh error means the session was
	// replaced during the exchange rather than rejected by the server.
	Superseded func(error) bool
	Replay     func(context.Context) (R, error)
	SignOut    func(context.Context)
	Navigate   func(context.Context, RouteKind)
	Record     func(context.Context, FailureKind, error)
}

// RecoveryResult carries the final outcome returned to the original caller.
type RecoveryResult[R any] struct {
	Outcome  RecoveryOutcome
	Kind     FailureKind
	Response R
	Err      error
}

// RunRecovery executes the failure branch for one attempt. attempt is zero
// for the original call and positive for a replay; a replay never refreshes.
func RunRecovery[R any](
	ctx context.Context,
	kind FailureKind,
	attempt int,
	resp R,
	err error,
	deps RecoveryDeps[R],
) RecoveryResult[R] {
	switch kind {
	case FailureNone:
		return RecoveryResult[R]{Outcome: OutcomePassThrough, Kind: kind, Response: resp, Err: err}

	case FailureUnauthorized:
		if attempt > 0 {
			signOut(ctx, deps)
			return RecoveryResult[R]{Outcome: OutcomeRetryExhausted, Kind: kind, Response: resp, Err: err}
		}

		if deps.TokenChanged != nil && deps.TokenChanged() {
			return replay(ctx, deps)
		}

		if deps.HasRefreshToken == nil || !deps.HasRefreshToken() {
			signOut(ctx, deps)
			return RecoveryResult[R]{Outcome: OutcomeNoRefreshToken, Kind: kind, Response: resp, Err: err}
		}

		if refreshErr := deps.Refresh(ctx); refreshErr != nil {
			if ctx.Err() != nil {
				return RecoveryResult[R]{Outcome: OutcomeCanceled, Kind: kind, Err: refreshErr}
			}
			if deps.Superseded != nil && deps.Superseded(refreshErr) {
				if deps.TokenChanged != nil && deps.TokenChanged() {
					return replay(ctx, deps)
				}
				return RecoveryResult[R]{Outcome: OutcomeSuperseded, Kind: kind, Err: refreshErr}
			}
			signOut(ctx, deps)
			return RecoveryResult[R]{Outcome: OutcomeRefreshFailed, Kind: kind, Err: refreshErr}
		}
		return replay(ctx, deps)

	case FailureForbidden:
		navigate(ctx, deps, RouteHome)
		return RecoveryResult[R]{Outcome: OutcomeForbidden, Kind: kind, Response: resp, Err: err}

	case FailureNotFound:
		navigate(ctx, deps, RouteNotFound)
		return RecoveryResult[R]{Outcome: OutcomeNotFound, Kind: kind, Response: resp, Err: err}

	default:
		if deps.Record != nil {
			deps.Record(ctx, kind, err)
		}
		return RecoveryResult[R]{Outcome: OutcomeOther, Kind: kind, Response: resp, Err: err}
	}
}

func replay[R any](ctx context.Context, deps RecoveryDeps[R]) RecoveryResult[R] {
	out, err := deps.Replay(ctx)
	if err != nil {
		return RecoveryResult[R]{Outcome: OutcomeReplayFailed, Kind: FailureUnauthorized, Response: out, Err: err}
	}
	return RecoveryResult[R]{Outcome: OutcomeRecovered, Kind: FailureUnauthorized, Response: out}
}

func signOut[R any](ctx context.Context, deps RecoveryDeps[R]) {
	if deps.SignOut != nil {
		deps.SignOut(ctx)
	}
	navigate(ctx, deps, RouteLogin)
}

func navigate[R any](ctx context.Context, deps RecoveryDeps[R], route RouteKind) {
	if deps.Navigate != nil {
		deps.Navigate(ctx, route)
	}
}
