package flows

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type recorder struct {
	refreshCalls int
	replayCalls  int
	signOuts     int
	routes       []RouteKind
	recorded     []FailureKind
}

func (r *recorder) deps(hasRefresh bool, refreshErr error, replayOut string, replayErr error) RecoveryDeps[string] {
	return RecoveryDeps[string]{
		HasRefreshToken: func() bool { return hasRefresh },
		TokenChanged:    func() bool { return false },
		Refresh: func(context.Context) error {
			r.refreshCalls++
			return refreshErr
		},
		Replay: func(context.Context) (string, error) {
			r.replayCalls++
			return replayOut, replayErr
		},
		SignOut:  func(context.Context) { r.signOuts++ },
		Navigate: func(_ context.Context, route RouteKind) { r.routes = append(r.routes, route) },
		Record:   func(_ context.Context, kind FailureKind, _ error) { r.recorded = append(r.recorded, kind) },
	}
}

func TestClassify(t *testing.T) {
	netErr := errors.New("dial tcp: refused")
	cases := []struct {
		status int
		err    error
		want   FailureKind
	}{
		{http.StatusOK, nil, FailureNone},
		{http.StatusNoContent, nil, FailureNone},
		{http.StatusUnauthorized, nil, FailureUnauthorized},
		{http.StatusForbidden, nil, FailureForbidden},
		{http.StatusNotFound, nil, FailureNotFound},
		{http.StatusInternalServerError, nil, FailureServer},
		{http.StatusBadGateway, nil, FailureServer},
		{http.StatusBadRequest, nil, FailureRequest},
		{http.StatusConflict, nil, FailureRequest},
		{0, netErr, FailureNetwork},
		{http.StatusUnauthorized, netErr, FailureNetwork},
		{0, nil, FailureMalformed},
	}
	for _, tc := range cases {
		if got := Classify(tc.status, tc.err); got != tc.want {
			t.Fatalf("Classify(%d, %v) = %d, want %d", tc.status, tc.err, got, tc.want)
		}
	}
}

func TestRecoveryRefreshAndReplayOnce(t *testing.T) {
	r := &recorder{}
	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), r.deps(true, nil, "ok", nil))

	if res.Outcome != OutcomeRecovered || res.Err != nil || res.Response != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if r.refreshCalls != 1 || r.replayCalls != 1 {
		t.Fatalf("expected one refresh and one replay, got %d/%d", r.refreshCalls, r.replayCalls)
	}
	if r.signOuts != 0 || len(r.routes) != 0 {
		t.Fatalf("recovered call must not sign out or redirect: %+v", r)
	}
}

func TestRecoveryReplayFailurePropagates(t *testing.T) {
	r := &recorder{}
	replayErr := errors.New("replay 500")
	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), r.deps(true, nil, "", replayErr))

	if res.Outcome != OutcomeReplayFailed || !errors.Is(res.Err, replayErr) {
		t.Fatalf("expected replay failure, got %+v", res)
	}
	if r.signOuts != 0 {
		t.Fatalf("replay failures are handled by the replay itself, got %d sign-outs", r.signOuts)
	}
}

func TestRecoveryRetryAttemptedNeverRefreshes(t *testing.T) {
	r := &recorder{}
	original := errors.New("401 again")
	res := RunRecovery(context.Background(), FailureUnauthorized, 1, "", original, r.deps(true, nil, "ok", nil))

	if res.Outcome != OutcomeRetryExhausted || !errors.Is(res.Err, original) {
		t.Fatalf("expected retry exhausted with original error, got %+v", res)
	}
	if r.refreshCalls != 0 || r.replayCalls != 0 {
		t.Fatalf("retry must not refresh or replay, got %d/%d", r.refreshCalls, r.replayCalls)
	}
	if r.signOuts != 1 || len(r.routes) != 1 || r.routes[0] != RouteLogin {
		t.Fatalf("expected one sign-out and one login redirect, got %+v", r)
	}
}

func TestRecoveryRefreshFailureReturnsRefreshError(t *testing.T) {
	r := &recorder{}
	refreshErr := errors.New("refresh rejected")
	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), r.deps(true, refreshErr, "", nil))

	if res.Outcome != OutcomeRefreshFailed || !errors.Is(res.Err, refreshErr) {
		t.Fatalf("expected refresh failure, got %+v", res)
	}
	if r.replayCalls != 0 {
		t.Fatalf("no replay after failed refresh, got %d", r.replayCalls)
	}
	if r.signOuts != 1 || len(r.routes) != 1 || r.routes[0] != RouteLogin {
		t.Fatalf("expected sign-out and login redirect, got %+v", r)
	}
}

func TestRecoveryNoRefreshTokenSignsOut(t *testing.T) {
	r := &recorder{}
	original := errors.New("401")
	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", original, r.deps(false, nil, "", nil))

	if res.Outcome != OutcomeNoRefreshToken || !errors.Is(res.Err, original) {
		t.Fatalf("expected original 401, got %+v", res)
	}
	if r.refreshCalls != 0 || r.signOuts != 1 || len(r.routes) != 1 {
		t.Fatalf("unexpected side effects %+v", r)
	}
}

func TestRecoveryTokenChangedReplaysWithoutRefresh(t *testing.T) {
	r := &recorder{}
	deps := r.deps(true, nil, "ok", nil)
	deps.TokenChanged = func() bool { return true }

	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), deps)
	if res.Outcome != OutcomeRecovered {
		t.Fatalf("expected recovered, got %+v", res)
	}
	if r.refreshCalls != 0 || r.replayCalls != 1 {
		t.Fatalf("expected replay without refresh, got %d/%d", r.refreshCalls, r.replayCalls)
	}
}

func TestRecoveryRedirectBranches(t *testing.T) {
	cases := []struct {
		kind    FailureKind
		outcome RecoveryOutcome
		route   RouteKind
	}{
		{FailureForbidden, OutcomeForbidden, RouteHome},
		{FailureNotFound, OutcomeNotFound, RouteNotFound},
	}
	for _, tc := range cases {
		r := &recorder{}
		original := errors.New("failure")
		res := RunRecovery(context.Background(), tc.kind, 0, "", original, r.deps(true, nil, "", nil))
		if res.Outcome != tc.outcome || !errors.Is(res.Err, original) {
			t.Fatalf("kind %d: unexpected result %+v", tc.kind, res)
		}
		if r.refreshCalls != 0 || r.signOuts != 0 {
			t.Fatalf("kind %d: no refresh or sign-out expected, got %+v", tc.kind, r)
		}
		if len(r.routes) != 1 || r.routes[0] != tc.route {
			t.Fatalf("kind %d: expected route %d, got %v", tc.kind, tc.route, r.routes)
		}
	}
}

func TestRecoveryOtherFailuresRecordedWithoutRedirect(t *testing.T) {
	for _, kind := range []FailureKind{FailureServer, FailureRequest, FailureNetwork, FailureMalformed} {
		r := &recorder{}
		res := RunRecovery(context.Background(), kind, 0, "", errors.New("boom"), r.deps(true, nil, "", nil))
		if res.Outcome != OutcomeOther {
			t.Fatalf("kind %d: expected other outcome, got %+v", kind, res)
		}
		if len(r.routes) != 0 || r.signOuts != 0 || r.refreshCalls != 0 {
			t.Fatalf("kind %d: unexpected side effects %+v", kind, r)
		}
		if len(r.recorded) != 1 || r.recorded[0] != kind {
			t.Fatalf("kind %d: expected failure to be recorded, got %v", kind, r.recorded)
		}
	}
}

func TestRecoveryPassThroughOnSuccess(t *testing.T) {
	r := &recorder{}
	res := RunRecovery(context.Background(), FailureNone, 0, "body", nil, r.deps(true, nil, "", nil))
	if res.Outcome != OutcomePassThrough || res.Response != "body" || res.Err != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if r.refreshCalls+r.replayCalls+r.signOuts+len(r.routes)+len(r.recorded) != 0 {
		t.Fatalf("success must have no side effects, got %+v", r)
	}
}

func TestRecoveryCanceledCallerKeepsSession(t *testing.T) {
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := RunRecovery(ctx, FailureUnauthorized, 0, "", errors.New("401"), r.deps(true, context.Canceled, "", nil))

	if res.Outcome != OutcomeCanceled || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected canceled outcome, got %+v", res)
	}
	if r.signOuts != 0 || len(r.routes) != 0 {
		t.Fatalf("canceled caller must not sign out, got %+v", r)
	}
}

func TestRecoverySupersededByNewLoginReplays(t *testing.T) {
	r := &recorder{}
	superseded := errors.New("session changed")
	deps := r.deps(true, superseded, "ok", nil)
	deps.Superseded = func(err error) bool { return errors.Is(err, superseded) }
	// The refresh finds a newer session, so the token differs by then.
	changed := false
	deps.TokenChanged = func() bool { return changed }
	refresh := deps.Refresh
	deps.Refresh = func(ctx context.Context) error {
		changed = true
		return refresh(ctx)
	}

	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), deps)

	if res.Outcome != OutcomeRecovered || res.Response != "ok" {
		t.Fatalf("expected replay with the newer session, got %+v", res)
	}
	if r.refreshCalls != 1 || r.replayCalls != 1 {
		t.Fatalf("expected one refresh and one replay, got %+v", r)
	}
	if r.signOuts != 0 || len(r.routes) != 0 {
		t.Fatalf("newer session must not be signed out, got %+v", r)
	}
}

func TestRecoverySupersededByLogoutLeavesSessionAlone(t *testing.T) {
	r := &recorder{}
	superseded := errors.New("session changed")
	deps := r.deps(true, superseded, "", nil)
	deps.Superseded = func(err error) bool { return errors.Is(err, superseded) }

	res := RunRecovery(context.Background(), FailureUnauthorized, 0, "", errors.New("401"), deps)

	if res.Outcome != OutcomeSuperseded || !errors.Is(res.Err, superseded) {
		t.Fatalf("expected superseded outcome, got %+v", res)
	}
	if r.replayCalls != 0 || r.signOuts != 0 || len(r.routes) != 0 {
		t.Fatalf("superseded refresh must not replay or sign out, got %+v", r)
	}
}
