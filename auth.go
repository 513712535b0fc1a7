package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authclient/internal/flows"
)

// authPayload is the login and register response. Older backends name the
// access token "token".
type authPayload struct {
	Access  string          `json:"access"`
	Token   string          `json:"token"`
	Refresh string          `json:"refresh"`
	User    json.RawMessage `json:"user"`
	Roles   []string        `json:"roles"`
}

func (p authPayload) accessToken() string {
	if p.Access != "" {
		return p.Access
	}
	return p.Token
}

func (p authPayload) session() Session {
	user := p.User
	if string(user) == "null" {
		user = nil
	}
	return Session{
		AccessToken:  p.accessToken(),
		RefreshToken: p.Refresh,
		User:         user,
		Roles:        p.Roles,
	}
}

// Login describes the login operation and its observable behavior.
//
// Login posts credentials (any JSON-encodable value) without a bearer token
// and without 401 recovery. On success the whole session is replaced and
// persisted, and a copy is returned. On failure the session is untouched.
func (c *Client) Login(ctx context.Context, credentials any) (Session, error) {
	payload, err := c.postAuth(ctx, c.cfg.Endpoints.Login, credentials)
	if err == nil && payload.accessToken() == "" {
		err = fmt.Errorf("%w: login response has no access token", ErrMalformedResponse)
	}
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.emitAudit(ctx, AuditEvent{EventType: AuditLogin}, err)
		return Session{}, fmt.Errorf("authclient: login: %w", err)
	}

	next := payload.session()
	c.session.replace(ctx, next)
	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, AuditEvent{EventType: AuditLogin}, nil)
	return c.session.snapshot(), nil
}

// Register describes the register operation and its observable behavior.
//
// Register posts userData like Login. When the response carries an access
// token the client is signed in with it; otherwise the session is left as
// is and the returned Session only carries the created profile.
func (c *Client) Register(ctx context.Context, userData any) (Session, error) {
	payload, err := c.postAuth(ctx, c.cfg.Endpoints.Register, userData)
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		c.emitAudit(ctx, AuditEvent{EventType: AuditRegister}, err)
		return Session{}, fmt.Errorf("authclient: register: %w", err)
	}

	c.metrics.Inc(MetricRegisterSuccess)
	if payload.accessToken() == "" {
		c.emitAudit(ctx, AuditEvent{EventType: AuditRegister, Metadata: map[string]string{"auto_login": "false"}}, nil)
		return payload.session(), nil
	}
	c.session.replace(ctx, payload.session())
	c.emitAudit(ctx, AuditEvent{EventType: AuditRegister, Metadata: map[string]string{"auto_login": "true"}}, nil)
	return c.session.snapshot(), nil
}

func (c *Client) postAuth(ctx context.Context, endpoint string, body any) (authPayload, error) {
	req, err := NewJSONRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return authPayload{}, err
	}
	resp, err := c.sendDirect(ctx, c.direct, req)
	if err != nil {
		return authPayload{}, err
	}
	var payload authPayload
	if err := resp.DecodeJSON(&payload); err != nil {
		return authPayload{}, err
	}
	return payload, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh exchanges the refresh token for a new access token, sharing an
// in-flight exchange when coalescing is enabled. A failed exchange clears
// the session. ErrNoRefreshToken is returned, without clearing, when there
// is nothing to exchange; so is a result discarded because the session
// changed while the exchange was in flight, and so is ctx ending before the
// shared exchange completes.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.refreshTokens(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrNotAuthenticated) || ctx.Err() != nil {
		return err
	}
	c.clearSession(ctx, "refresh_failed")
	return err
}

// Logout describes the logout operation and its observable behavior.
//
// Logout asks the server to invalidate the session when one exists, then
// clears memory and storage whatever the server said. It never fails and is
// idempotent.
func (c *Client) Logout(ctx context.Context) {
	res := flows.RunLogout(ctx, flows.LogoutDeps{
		IsAuthenticated: c.session.isAuthenticated,
		Invalidate:      c.invalidateRemote,
		Clear: func(ctx context.Context) {
			c.clearSession(ctx, "logout")
		},
		Warn: c.logger.Warn,
	})

	c.metrics.Inc(MetricLogout)
	c.emitAudit(ctx, AuditEvent{
		EventType: AuditLogout,
		Metadata:  map[string]string{"server_called": fmt.Sprint(res.ServerCalled)},
	}, res.ServerErr)
}

func (c *Client) invalidateRemote(ctx context.Context) error {
	var body any
	if rt := c.session.refreshToken(); rt != "" {
		body = map[string]string{"refresh": rt}
	}
	req, err := NewJSONRequest(http.MethodPost, c.cfg.Endpoints.Logout, body)
	if err != nil {
		return err
	}
	_, err = c.sendDirect(ctx, c.bearerOnly, req)
	return err
}

// FetchProfile describes the fetch-profile operation and its observable
// behavior.
//
// FetchProfile loads the profile through the full pipeline, so an expired
// token is refreshed transparently, and stores it in the session.
func (c *Client) FetchProfile(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.Get(ctx, c.cfg.Endpoints.Profile)
	if err != nil {
		return nil, err
	}
	return c.storeProfile(ctx, resp)
}

// UpdateProfile describes the update-profile operation and its observable
// behavior.
//
// UpdateProfile sends data with the configured method (PATCH by default)
// through the full pipeline and stores the returned profile.
func (c *Client) UpdateProfile(ctx context.Context, data any) (json.RawMessage, error) {
	req, err := NewJSONRequest(c.cfg.Endpoints.UpdateProfileMethod, c.cfg.Endpoints.Profile, data)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.storeProfile(ctx, resp)
}

func (c *Client) storeProfile(ctx context.Context, resp *Response) (json.RawMessage, error) {
	body := bytes.TrimSpace(resp.Body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: profile is not JSON", ErrMalformedResponse)
	}
	user := json.RawMessage(body)
	c.session.setUser(ctx, user)
	return user, nil
}
