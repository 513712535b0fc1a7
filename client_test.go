package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authclient/authtest"
	"github.com/MrEthical07/authclient/navigation"
	"github.com/MrEthical07/authclient/storage"
)

func TestDispatcherAttachesExactlyOneBearer(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	req := NewRequest(http.MethodGet, authtest.PathProtected, nil).
		WithHeader("Authorization", "Bearer caller-supplied")
	resp, err := h.client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	seen := h.server.RequestsTo(authtest.PathProtected)
	if len(seen) != 1 {
		t.Fatalf("expected 1 request, got %d", len(seen))
	}
	want := "Bearer " + h.client.AccessToken()
	if len(seen[0].Authorization) != 1 || seen[0].Authorization[0] != want {
		t.Fatalf("expected single %q header, got %v", want, seen[0].Authorization)
	}
	if req.Header.Get("Authorization") != "Bearer caller-supplied" {
		t.Fatal("caller request must not be mutated")
	}
}

func TestAnonymousRequestSendsNoBearer(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.client.Get(context.Background(), authtest.PathForbidden)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	seen := h.server.RequestsTo(authtest.PathForbidden)
	if len(seen) != 1 || len(seen[0].Authorization) != 0 {
		t.Fatalf("expected no Authorization header, got %+v", seen)
	}
}

func TestExpiredAccessTokenIsRefreshedAndReplayed(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	oldToken := h.client.AccessToken()
	h.server.ExpireAccessTokens()

	resp, err := h.client.Get(context.Background(), authtest.PathProtected)
	if err != nil {
		t.Fatalf("expected recovered request, got %v", err)
	}
	var body map[string]string
	if err := resp.DecodeJSON(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "ok" {
		t.Fatalf("expected replay body, got %v", body)
	}

	if calls := h.server.RefreshCalls(); calls != 1 {
		t.Fatalf("expected 1 refresh call, got %d", calls)
	}
	seen := h.server.RequestsTo(authtest.PathProtected)
	if len(seen) != 2 {
		t.Fatalf("expected original + replay, got %d requests", len(seen))
	}
	newToken := h.client.AccessToken()
	if newToken == "" || newToken == oldToken {
		t.Fatal("expected a new access token after refresh")
	}
	if seen[0].Authorization[0] != "Bearer "+oldToken {
		t.Fatalf("original attempt carried %v", seen[0].Authorization)
	}
	if len(seen[1].Authorization) != 1 || seen[1].Authorization[0] != "Bearer "+newToken {
		t.Fatalf("replay must carry the new token, got %v", seen[1].Authorization)
	}
	if seen[0].RequestID == "" || seen[0].RequestID != seen[1].RequestID {
		t.Fatalf("replay must reuse the request id: %q vs %q", seen[0].RequestID, seen[1].RequestID)
	}
	if stored := h.storedKeys(t)[KeyAccessToken]; stored != newToken {
		t.Fatal("refreshed token must be persisted")
	}
	if len(h.nav.Calls()) != 0 {
		t.Fatalf("recovered request must not navigate, got %v", h.nav.Calls())
	}

	m := h.client.MetricsSnapshot().Counters
	if m[MetricAuthRecovered] != 1 || m[MetricReplayIssued] != 1 || m[MetricRefreshSuccess] != 1 {
		t.Fatalf("unexpected metrics: %v", m)
	}
}

func TestRefreshFailureClearsSessionAndRedirects(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.server.ExpireAccessTokens()
	h.server.RevokeRefreshTokens()

	ctx := WithRedirectTarget(context.Background(), "/dashboard")
	resp, err := h.client.Get(ctx, authtest.PathProtected)
	if resp != nil {
		t.Fatal("expected nil response")
	}
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected the original 401 to be matchable, got %v", err)
	}
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected original 401 ResponseError, got %v", err)
	}
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected *RefreshError, got %T", err)
	}

	h.assertSignedOut(t)
	if n := h.server.Hits(authtest.PathProtected); n != 1 {
		t.Fatalf("failed refresh must not replay, got %d hits", n)
	}
	if n := h.nav.Count(navigation.RouteLogin); n != 1 {
		t.Fatalf("expected one login redirect, got %d", n)
	}
	last, _ := h.nav.Last()
	if last.RedirectTarget != "/dashboard" {
		t.Fatalf("expected redirect target /dashboard, got %q", last.RedirectTarget)
	}
}

func TestLoginRedirectDefaultsToRequestPath(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.server.ExpireAccessTokens()
	h.server.RevokeRefreshTokens()

	if _, err := h.client.Get(context.Background(), authtest.PathProtected); err == nil {
		t.Fatal("expected error")
	}
	last, ok := h.nav.Last()
	if !ok || last.Route != navigation.RouteLogin || last.RedirectTarget != authtest.PathProtected {
		t.Fatalf("unexpected navigation %+v", last)
	}
}

func TestReplayUnauthorizedEndsSessionWithoutSecondRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	_, err := h.client.Get(context.Background(), authtest.PathAlways401)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if errors.Is(err, ErrRefreshFailed) {
		t.Fatal("refresh succeeded, error must be the replay 401")
	}
	if calls := h.server.RefreshCalls(); calls != 1 {
		t.Fatalf("expected exactly 1 refresh, got %d", calls)
	}
	if hits := h.server.Hits(authtest.PathAlways401); hits != 2 {
		t.Fatalf("expected original + one replay, got %d", hits)
	}
	h.assertSignedOut(t)
	if n := h.nav.Count(navigation.RouteLogin); n != 1 {
		t.Fatalf("expected exactly one login redirect, got %d", n)
	}
	if got := h.client.MetricsSnapshot().Counters[MetricAuthFailed]; got != 1 {
		t.Fatalf("expected one auth failure, got %d", got)
	}
}

func TestUnauthorizedWithoutRefreshTokenSignsOut(t *testing.T) {
	h := newHarness(t, nil)
	h.client.session.replace(context.Background(), Session{AccessToken: "stale-access"})

	_, err := h.client.Get(context.Background(), authtest.PathProtected)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if h.server.RefreshCalls() != 0 {
		t.Fatal("no refresh token: refresh must not be called")
	}
	h.assertSignedOut(t)
	if h.nav.Count(navigation.RouteLogin) != 1 {
		t.Fatalf("expected login redirect, got %v", h.nav.Calls())
	}
}

func TestForbiddenNavigatesHomeWithoutRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	_, err := h.client.Get(context.Background(), authtest.PathAdmin)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.Detail() != "admin role required" {
		t.Fatalf("expected response detail, got %v", err)
	}
	if h.server.RefreshCalls() != 0 || h.server.Hits(authtest.PathAdmin) != 1 {
		t.Fatal("403 must not refresh or retry")
	}
	last, _ := h.nav.Last()
	if last.Route != navigation.RouteHome || len(h.nav.Calls()) != 1 {
		t.Fatalf("expected a single home redirect, got %v", h.nav.Calls())
	}
	if !h.client.IsAuthenticated() {
		t.Fatal("403 must not clear the session")
	}
}

func TestNotFoundNavigates(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.client.Get(context.Background(), "/api/missing/")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if h.nav.Count(navigation.RouteNotFound) != 1 {
		t.Fatalf("expected not-found redirect, got %v", h.nav.Calls())
	}
}

func TestOtherFailuresAreRecordedWithoutRedirect(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	_, err := h.client.Get(context.Background(), authtest.PathServerErr)
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	_, err = h.client.Get(context.Background(), authtest.PathBadRequest)
	if !errors.Is(err, ErrRequest) {
		t.Fatalf("expected ErrRequest, got %v", err)
	}

	if len(h.nav.Calls()) != 0 {
		t.Fatalf("other failures must not navigate, got %v", h.nav.Calls())
	}
	if !h.client.IsAuthenticated() {
		t.Fatal("other failures must not clear the session")
	}
	m := h.client.MetricsSnapshot().Counters
	if m[MetricServerError] != 1 || m[MetricRequestError] != 1 || m[MetricRequestFailure] != 2 {
		t.Fatalf("unexpected metrics: %v", m)
	}
}

func TestNetworkErrorIsNotRetried(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	h := newHarness(t, nil, func(b *Builder) {
		b.WithBaseURL(deadURL)
	})

	_, err := h.client.Get(context.Background(), authtest.PathProtected)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if len(h.nav.Calls()) != 0 {
		t.Fatal("network errors must not navigate")
	}
	if got := h.client.MetricsSnapshot().Counters[MetricNetworkError]; got != 1 {
		t.Fatalf("expected one network error, got %d", got)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	h := newHarness(t, nil, func(b *Builder) {
		b.config.HTTP.Timeout = 50 * time.Millisecond
	})
	h.server.SetSlowDelay(time.Second)

	_, err := h.client.Get(context.Background(), authtest.PathSlow)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork on timeout, got %v", err)
	}
}

func TestWithoutRedirectSkipsNavigation(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	h.server.ExpireAccessTokens()
	h.server.RevokeRefreshTokens()

	_, err := h.client.Get(WithoutRedirect(context.Background()), authtest.PathProtected)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(h.nav.Calls()) != 0 {
		t.Fatalf("expected no navigation, got %v", h.nav.Calls())
	}
	h.assertSignedOut(t)
}

func TestStaleTokenReplaysWithoutRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)
	fresh := h.client.AccessToken()

	var cl *call
	// Simulate an attempt that carried a token replaced while it was in
	// flight: the session already holds a usable token.
	resp, err := h.client.recoverMiddleware(func(ctx context.Context, c *call) (*Response, error) {
		if c.attempt == 0 {
			c.sentToken = "superseded"
			h.client.session.setTokens(ctx, fresh, "")
			return &Response{StatusCode: http.StatusUnauthorized}, nil
		}
		cl = c
		return &Response{StatusCode: http.StatusOK}, nil
	})(context.Background(), &call{req: NewRequest(http.MethodGet, "/x/", nil), requestID: "rid"})
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected replayed success, got %v %v", resp, err)
	}
	if h.server.RefreshCalls() != 0 {
		t.Fatal("stale-token shortcut must not refresh")
	}
	if cl == nil || cl.attempt != 1 || cl.requestID != "rid" {
		t.Fatalf("unexpected replay call %+v", cl)
	}
}

func TestDefaultAndRequestIDHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.HTTP.DefaultHeaders["X-Client"] = "tests"
	client, err := New().WithConfig(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer client.Close()

	req := NewRequest(http.MethodGet, "/ping/", nil).WithHeader("X-Request-ID", "caller-id")
	if _, err := client.Do(context.Background(), req); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	got := <-headers
	if got.Get("X-Client") != "tests" || got.Get("Content-Type") != "application/json" {
		t.Fatalf("default headers missing: %v", got)
	}
	if got.Get("X-Request-ID") != "caller-id" {
		t.Fatalf("caller request id must be kept, got %q", got.Get("X-Request-ID"))
	}
	if got.Get("User-Agent") != "authclient/1" {
		t.Fatalf("unexpected user agent %q", got.Get("User-Agent"))
	}
}

func TestResolveKeepsTrailingSlashAndQuery(t *testing.T) {
	h := newHarness(t, nil)
	u, err := h.client.resolve(Request{Path: "/api/items/?page=2", Query: map[string][]string{"q": {"x"}}})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !strings.HasPrefix(u, h.server.URL+"/api/items/?") || !strings.Contains(u, "page=2") || !strings.Contains(u, "q=x") {
		t.Fatalf("unexpected url %q", u)
	}
}

func TestClosedClientRejectsRequests(t *testing.T) {
	h := newHarness(t, nil)
	h.client.Close()
	h.client.Close()

	if _, err := h.client.Get(context.Background(), authtest.PathProtected); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestStorageFailuresAreCountedNotReturned(t *testing.T) {
	store := &failingStore{Memory: storage.NewMemory()}
	h := newHarness(t, nil, func(b *Builder) {
		b.WithStorage(store)
	})
	h.login(t)

	if !h.client.IsAuthenticated() {
		t.Fatal("memory session must survive storage failure")
	}
	h.client.Logout(context.Background())
	if got := h.client.MetricsSnapshot().Counters[MetricStorageFailure]; got < 2 {
		t.Fatalf("expected storage failures to be counted, got %d", got)
	}
}

func TestDecodeUser(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.client.DecodeUser(&authtest.User{}); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	h.login(t)

	var u authtest.User
	if err := h.client.DecodeUser(&u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if u.Username != testUser {
		t.Fatalf("unexpected user %+v", u)
	}
	raw := h.client.User()
	if !json.Valid(raw) {
		t.Fatalf("user must be JSON: %s", raw)
	}
}

func TestOversizedResponseIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/small/" {
			_, _ = w.Write([]byte(`{"v":"ok"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"v": strings.Repeat("x", 100)})
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.HTTP.MaxResponseBytes = 20
	nav := &navigation.Recorder{}
	client, err := New().WithConfig(cfg).WithNavigator(nav).WithMetricsEnabled(true).Build(context.Background())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer client.Close()

	resp, err := client.Get(context.Background(), "/big/")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got resp=%v err=%v", resp, err)
	}
	if resp != nil {
		t.Fatal("a truncated body must not be returned")
	}
	if got := client.MetricsSnapshot().Counters[MetricMalformedResponse]; got != 1 {
		t.Fatalf("expected malformed metric, got %d", got)
	}
	if len(nav.Calls()) != 0 {
		t.Fatalf("unexpected navigation %v", nav.Calls())
	}

	// A body within the limit is returned whole.
	resp, err = client.Get(context.Background(), "/small/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(resp.Body) != `{"v":"ok"}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}
