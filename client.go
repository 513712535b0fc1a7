package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/pipeline"
	"github.com/MrEthical07/authclient/navigation"
	"golang.org/x/sync/singleflight"
)

type handler = pipeline.Handler[*call, *Response]

// call is one attempt of a logical request. The replay of a request is a new
// call with attempt 1 sharing the request ID.
type call struct {
	req       Request
	url       string
	attempt   int
	requestID string
	// header is built per attempt by the dispatcher.
	header http.Header
	// sentToken is the access token the attempt carried.
	sentToken string
	// earlyRefreshErr is the failure of a proactive refresh that exchanged
	// earlyRefreshToken before this attempt was sent.
	earlyRefreshToken string
	earlyRefreshErr   error
}

func (cl *call) replay() *call {
	return &call{
		req:       cl.req,
		url:       cl.url,
		attempt:   cl.attempt + 1,
		requestID: cl.requestID,
	}
}

// Client sends authenticated requests and keeps the session they depend on.
// It is safe for concurrent use once built.
type Client struct {
	cfg       Config
	baseURL   *url.URL
	http      *http.Client
	session   *sessionState
	navigator navigation.Navigator
	logger    *slog.Logger
	metrics   *Metrics
	audit     *audit.Dispatcher[AuditEvent]
	now       func() time.Time

	refreshGroup singleflight.Group

	// authed runs the full chain: request ID, recovery, bearer, observe.
	authed handler
	// direct skips recovery and bearer; used for login, register, refresh.
	direct handler
	// bearerOnly attaches the token without recovery; used for logout.
	bearerOnly handler

	closed atomic.Bool
}

// Do sends req through the pipeline. A 401 is recovered with at most one
// refresh and one replay; every other failure is returned after its side
// effects (session clear, navigation) have run. Non-2xx outcomes are
// returned as *ResponseError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	cl, err := c.newCall(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.authed(ctx, cl)
	if err != nil {
		c.metrics.Inc(MetricRequestFailure)
		return nil, err
	}
	c.metrics.Inc(MetricRequestSuccess)
	return resp, nil
}

// Get sends a GET to path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, path, nil))
}

// Post sends body as JSON to path.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON to path.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPut, path, body)
}

// Patch sends body as JSON to path.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, body)
}

// Delete sends a DELETE to path.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, path, nil))
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

func (c *Client) newCall(req Request) (*call, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	u, err := c.resolve(req)
	if err != nil {
		return nil, err
	}
	return &call{req: req, url: u}, nil
}

func (c *Client) resolve(req Request) (string, error) {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return "", fmt.Errorf("authclient: invalid request path %q: %w", req.Path, err)
	}
	var u *url.URL
	if ref.IsAbs() {
		u = ref
	} else {
		u = c.baseURL.JoinPath(ref.Path)
		// JoinPath cleans the path and drops a trailing slash the API needs.
		if strings.HasSuffix(ref.Path, "/") && !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		u.RawQuery = ref.RawQuery
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// AccessToken returns the current access token, empty when signed out.
func (c *Client) AccessToken() string { return c.session.accessToken() }

// RefreshToken returns the current refresh token.
func (c *Client) RefreshToken() string { return c.session.refreshToken() }

// IsAuthenticated reports whether an access token is present.
func (c *Client) IsAuthenticated() bool { return c.session.isAuthenticated() }

// HasRole reports whether the session carries role.
func (c *Client) HasRole(role string) bool { return c.session.hasRole(role) }

// IsAdmin reports whether the session carries the configured admin role.
func (c *Client) IsAdmin() bool { return c.session.hasRole(c.cfg.Session.AdminRole) }

// User returns the raw JSON profile, nil when absent.
func (c *Client) User() json.RawMessage { return c.session.snapshot().User }

// Roles returns a copy of the session roles.
func (c *Client) Roles() []string { return c.session.snapshot().Roles }

// Snapshot returns a copy of the whole session.
func (c *Client) Snapshot() Session { return c.session.snapshot() }

// DecodeUser unmarshals the stored profile into v.
func (c *Client) DecodeUser(v any) error {
	user := c.User()
	if len(user) == 0 {
		return ErrNotAuthenticated
	}
	return json.Unmarshal(user, v)
}

// Clear wipes the session in memory and storage without a server call.
func (c *Client) Clear(ctx context.Context) {
	c.clearSession(ctx, "clear")
}

// MetricsSnapshot returns the client metrics.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped by backpressure.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close stops the audit dispatcher after draining it. Later calls to Do
// return ErrClientClosed. The session is left untouched.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.audit.Close()
}
