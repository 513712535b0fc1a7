package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authclient/internal/flows"
	"github.com/MrEthical07/authclient/navigation"
)

// recoverMiddleware is the refresh coordinator. It inspects every attempt
// outcome and runs exactly one failure branch: 401, 403, 404 or other.
// Replays re-enter this middleware with attempt 1, so a second 401 ends the
// session instead of refreshing again.
func (c *Client) recoverMiddleware(next handler) handler {
	var h handler
	h = func(ctx context.Context, cl *call) (*Response, error) {
		resp, err := next(ctx, cl)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		kind := flows.Classify(status, err)
		if errors.Is(err, ErrMalformedResponse) {
			kind = flows.FailureMalformed
		}
		if kind == flows.FailureNone {
			return resp, nil
		}

		failure := err
		if failure == nil {
			failure = responseError(cl, resp)
		}

		res := flows.RunRecovery(ctx, kind, cl.attempt, resp, failure, flows.RecoveryDeps[*Response]{
			HasRefreshToken: func() bool {
				return c.session.refreshToken() != ""
			},
			TokenChanged: func() bool {
				current := c.session.accessToken()
				return current != "" && current != cl.sentToken
			},
			Refresh: func(ctx context.Context) error {
				// The server already rejected this refresh token for this call.
				if cl.earlyRefreshErr != nil && cl.earlyRefreshToken == c.session.refreshToken() {
					return &RefreshError{Original: failure, Err: cl.earlyRefreshErr}
				}
				if err := c.refreshTokens(ctx); err != nil {
					return &RefreshError{Original: failure, Err: err}
				}
				return nil
			},
			Superseded: func(err error) bool {
				return errors.Is(err, errSessionSuperseded)
			},
			Replay: func(ctx context.Context) (*Response, error) {
				c.metrics.Inc(MetricReplayIssued)
				return h(ctx, cl.replay())
			},
			SignOut: func(ctx context.Context) {
				c.clearSession(ctx, "auth_failed")
			},
			Navigate: func(ctx context.Context, route flows.RouteKind) {
				c.navigate(ctx, route, cl)
			},
			Record: func(ctx context.Context, kind flows.FailureKind, err error) {
				c.recordFailure(ctx, cl, kind, status, err)
			},
		})

		c.observeRecovery(ctx, cl, status, res)
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Response, nil
	}
	return h
}

func (c *Client) observeRecovery(ctx context.Context, cl *call, status int, res flows.RecoveryResult[*Response]) {
	switch res.Outcome {
	case flows.OutcomeRecovered:
		c.metrics.Inc(MetricAuthRecovered)
		c.emitCallAudit(ctx, AuditRecovered, cl, http.StatusUnauthorized, nil)
	case flows.OutcomeRetryExhausted, flows.OutcomeNoRefreshToken, flows.OutcomeRefreshFailed:
		c.metrics.Inc(MetricAuthFailed)
		c.logger.Warn("authclient: authentication lost",
			"request_id", cl.requestID,
			"path", cl.req.Path,
			"attempt", cl.attempt,
			"reason", recoveryReason(res.Outcome),
			"error", res.Err,
		)
		c.emitCallAudit(ctx, AuditAuthFailed, cl, status, res.Err)
	case flows.OutcomeSuperseded:
		c.logger.Debug("authclient: refresh superseded by a newer session",
			"request_id", cl.requestID,
			"path", cl.req.Path,
		)
	case flows.OutcomeForbidden:
		c.metrics.Inc(MetricForbidden)
	case flows.OutcomeNotFound:
		c.metrics.Inc(MetricNotFound)
	}
}

func recoveryReason(o flows.RecoveryOutcome) string {
	switch o {
	case flows.OutcomeRetryExhausted:
		return "replay_unauthorized"
	case flows.OutcomeNoRefreshToken:
		return "no_refresh_token"
	case flows.OutcomeRefreshFailed:
		return "refresh_failed"
	default:
		return "unknown"
	}
}

func (c *Client) recordFailure(ctx context.Context, cl *call, kind flows.FailureKind, status int, err error) {
	switch kind {
	case flows.FailureServer:
		c.metrics.Inc(MetricServerError)
		c.logger.Error("authclient: server error", "request_id", cl.requestID, "method", cl.req.Method, "path", cl.req.Path, "status", status)
	case flows.FailureNetwork:
		c.metrics.Inc(MetricNetworkError)
		c.logger.Error("authclient: network error", "request_id", cl.requestID, "method", cl.req.Method, "path", cl.req.Path, "error", err)
	case flows.FailureRequest:
		c.metrics.Inc(MetricRequestError)
		c.logger.Warn("authclient: request rejected", "request_id", cl.requestID, "method", cl.req.Method, "path", cl.req.Path, "status", status)
	default:
		c.metrics.Inc(MetricMalformedResponse)
		c.logger.Error("authclient: unexpected response", "request_id", cl.requestID, "method", cl.req.Method, "path", cl.req.Path, "status", status)
	}
	c.emitCallAudit(ctx, AuditRequestFailed, cl, status, err)
}

func (c *Client) navigate(ctx context.Context, route flows.RouteKind, cl *call) {
	if redirectsDisabled(ctx) {
		return
	}

	var name string
	var opts navigation.NavigateOptions
	switch route {
	case flows.RouteLogin:
		name = c.cfg.Routes.Login
		if target, ok := redirectTargetFromContext(ctx); ok {
			opts.RedirectTarget = target
		} else {
			opts.RedirectTarget = cl.req.Path
		}
	case flows.RouteHome:
		name = c.cfg.Routes.Home
	case flows.RouteNotFound:
		name = c.cfg.Routes.NotFound
	default:
		return
	}

	c.metrics.Inc(MetricRedirect)
	c.logger.Debug("authclient: navigate", "route", name, "redirect_target", opts.RedirectTarget)
	c.emitAudit(ctx, AuditEvent{
		EventType: AuditRedirect,
		RequestID: cl.requestID,
		Path:      cl.req.Path,
		Method:    cl.req.Method,
		Metadata:  map[string]string{"route": name},
	}, nil)
	c.navigator.Navigate(ctx, name, opts)
}

func (c *Client) clearSession(ctx context.Context, reason string) {
	c.session.clear(ctx)
	c.metrics.Inc(MetricSessionCleared)
	c.emitAudit(ctx, AuditEvent{
		EventType: AuditSessionCleared,
		Metadata:  map[string]string{"reason": reason},
	}, nil)
}

// refreshTokens exchanges the refresh token for a new access token. With
// coalescing enabled, callers holding the same refresh token share one
// in-flight exchange; the exchange itself is detached from any single
// caller's cancellation.
func (c *Client) refreshTokens(ctx context.Context) error {
	rt := c.session.refreshToken()
	if rt == "" {
		return ErrNoRefreshToken
	}
	if !c.cfg.Refresh.Coalesce {
		return c.exchangeRefresh(ctx, rt)
	}

	ch := c.refreshGroup.DoChan(rt, func() (any, error) {
		return nil, c.exchangeRefresh(context.WithoutCancel(ctx), rt)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.Inc(MetricRefreshCoalesced)
		}
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRefreshFailed, ctx.Err())
	}
}

// errSessionSuperseded marks a refresh result discarded because the session
// no longer holds the refresh token that was exchanged.
var errSessionSuperseded = errors.New("session changed during refresh")

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// exchangeRefresh performs one refresh call. The new pair is stored only if
// the session still holds rt, so a logout or re-login that happened while
// the call was in flight is not overwritten.
func (c *Client) exchangeRefresh(ctx context.Context, rt string) error {
	req, err := NewJSONRequest(http.MethodPost, c.cfg.Endpoints.Refresh, map[string]string{"refresh": rt})
	if err != nil {
		return err
	}

	resp, err := c.sendDirect(ctx, c.direct, req)
	if err == nil {
		var body refreshResponse
		if err = json.Unmarshal(resp.Body, &body); err != nil {
			err = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		} else if body.Access == "" {
			err = fmt.Errorf("%w: refresh response has no access token", ErrMalformedResponse)
		} else if !c.session.setTokensIf(ctx, rt, body.Access, body.Refresh) {
			err = fmt.Errorf("%w: %w", ErrNotAuthenticated, errSessionSuperseded)
		}
	}

	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
		c.emitAudit(ctx, AuditEvent{EventType: AuditRefresh}, err)
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	c.metrics.Inc(MetricRefreshSuccess)
	c.emitAudit(ctx, AuditEvent{EventType: AuditRefresh}, nil)
	return nil
}
