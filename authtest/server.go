package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Default endpoint paths served by [Server].
const (
	PathLogin      = "/api/auth/login/"
	PathRegister   = "/api/auth/register/"
	PathRefresh    = "/api/auth/token/refresh/"
	PathLogout     = "/api/auth/logout/"
	PathProfile    = "/api/auth/profile/"
	PathProtected  = "/api/protected/"
	PathAdmin      = "/api/admin/"
	PathForbidden  = "/api/forbidden/"
	PathServerErr  = "/api/error/"
	PathBadRequest = "/api/bad-request/"
	PathAlways401  = "/api/always-401/"
	PathSlow       = "/api/slow/"
)

// User is the profile record returned by the server.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type account struct {
	user  User
	hash  string
	roles []string
}

// Request is one request observed by the server.
type Request struct {
	Method        string
	Path          string
	Authorization []string
	RequestID     string
}

// Option configures a [Server].
type Option func(*Server)

// WithUser seeds an account. Seeding hashes the password with argon2id.
func WithUser(username, password string, roles ...string) Option {
	return func(s *Server) {
		if err := s.AddUser(username, password, roles...); err != nil {
			panic(err)
		}
	}
}

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.tokens.accessTTL = ttl }
}

// WithRefreshRotation controls whether refresh returns (and requires) a new
// refresh token on every call.
func WithRefreshRotation(rotate bool) Option {
	return func(s *Server) { s.rotate = rotate }
}

// WithRegisterTokens controls whether register responds with tokens
// (auto-login) or only the created profile.
func WithRegisterTokens(issue bool) Option {
	return func(s *Server) { s.registerTokens = issue }
}

// WithLegacyTokenField makes login answer with "token" instead of "access".
func WithLegacyTokenField() Option {
	return func(s *Server) { s.legacyTokenField = true }
}

// Server is an in-process auth API. It issues real JWT access tokens and
// opaque refresh tokens, and records every request it receives.
type Server struct {
	*httptest.Server

	tokens           *tokenIssuer
	rotate           bool
	registerTokens   bool
	legacyTokenField bool

	mu       sync.Mutex
	accounts map[string]*account
	nextID   int
	requests []Request

	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
	refreshDelay atomic.Int64
	slowDelay    atomic.Int64
}

// NewServer starts a server. Call Close when done.
func NewServer(opts ...Option) *Server {
	s := &Server{
		tokens:         newTokenIssuer(15 * time.Minute),
		registerTokens: true,
		accounts:       make(map[string]*account),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.slowDelay.Store(int64(time.Second))
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post(PathLogin, s.handleLogin)
	r.Post(PathRegister, s.handleRegister)
	r.Post(PathRefresh, s.handleRefresh)
	r.Post(PathLogout, s.handleLogout)

	r.Group(func(auth chi.Router) {
		auth.Use(s.requireAuth)
		auth.Get(PathProfile, s.handleProfile)
		auth.Patch(PathProfile, s.handleUpdateProfile)
		auth.Put(PathProfile, s.handleUpdateProfile)
		auth.Get(PathProtected, s.handleProtected)
		auth.Post(PathProtected, s.handleProtected)
		auth.Get(PathAdmin, s.handleAdmin)
	})

	r.Get(PathForbidden, func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusForbidden, "forbidden")
	})
	r.Get(PathServerErr, func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusInternalServerError, "internal error")
	})
	r.Get(PathBadRequest, func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusBadRequest, "bad request")
	})
	r.Get(PathAlways401, func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusUnauthorized, "token not valid")
	})
	r.Get(PathSlow, func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-time.After(time.Duration(s.slowDelay.Load())):
		case <-req.Context().Done():
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "slow"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "not found")
	})

	return r
}

// AddUser creates an account.
func (s *Server) AddUser(username, password string, roles ...string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.accounts[username] = &account{
		user:  User{ID: s.nextID, Username: username},
		hash:  hash,
		roles: append([]string(nil), roles...),
	}
	return nil
}

// IssueTokens mints a token pair for an existing user without a login call.
func (s *Server) IssueTokens(username string) (access, refresh string, err error) {
	access, err = s.tokens.issueAccess(username)
	if err != nil {
		return "", "", err
	}
	return access, s.tokens.issueRefresh(username), nil
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() { s.tokens.expireAccess() }

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() { s.tokens.revokeAllRefresh() }

// SetRefreshDelay delays refresh responses, widening the window in which
// concurrent requests observe the same expired token.
func (s *Server) SetRefreshDelay(d time.Duration) { s.refreshDelay.Store(int64(d)) }

// SetSlowDelay sets how long PathSlow takes to answer.
func (s *Server) SetSlowDelay(d time.Duration) { s.slowDelay.Store(int64(d)) }

// RefreshCalls returns how many refresh requests were received.
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// LogoutCalls returns how many logout requests were received.
func (s *Server) LogoutCalls() int { return int(s.logoutCalls.Load()) }

// Requests returns every observed request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestsTo returns the observed requests for path.
func (s *Server) RequestsTo(path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int { return len(s.RequestsTo(path)) }

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: slices.Clone(r.Header.Values("Authorization")),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type userContextKey struct{}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := r.Header.Values("Authorization")
		if len(values) != 1 {
			writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		raw, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		username, err := s.tokens.parseAccess(raw)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "token not valid")
			return
		}
		acct, ok := s.account(username)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "user not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithAccount(r, acct)))
	})
}

func (s *Server) account(username string) (*account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[username]
	return acct, ok
}

func (s *Server) snapshot(acct *account) (User, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return acct.user, slices.Clone(acct.roles)
}

func (s *Server) authPayload(username string, acct *account) (map[string]any, error) {
	access, refresh, err := s.IssueTokens(username)
	if err != nil {
		return nil, err
	}
	user, roles := s.snapshot(acct)
	if roles == nil {
		roles = []string{}
	}
	accessField := "access"
	if s.legacyTokenField {
		accessField = "token"
	}
	return map[string]any{
		accessField: access,
		"refresh":   refresh,
		"user":      user,
		"roles":     roles,
	}, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}

	acct, ok := s.account(body.Username)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if match, err := verifyPassword(body.Password, acct.hash); err != nil || !match {
		writeDetail(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	payload, err := s.authPayload(body.Username, acct)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if _, exists := s.account(body.Username); exists {
		writeDetail(w, http.StatusBadRequest, "username already taken")
		return
	}
	if err := s.AddUser(body.Username, body.Password); err != nil {
		writeDetail(w, http.StatusInternalServerError, "register failed")
		return
	}
	acct, _ := s.account(body.Username)
	s.mu.Lock()
	acct.user.Email = body.Email
	s.mu.Unlock()

	if !s.registerTokens {
		user, _ := s.snapshot(acct)
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
		return
	}
	payload, err := s.authPayload(body.Username, acct)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Refresh == "" {
		writeDetail(w, http.StatusBadRequest, "refresh is required")
		return
	}
	username, ok := s.tokens.redeem(body.Refresh, s.rotate)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "token is invalid or expired")
		return
	}
	access, err := s.tokens.issueAccess(username)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token issue failed")
		return
	}

	resp := map[string]string{"access": access}
	if s.rotate {
		resp["refresh"] = s.tokens.issueRefresh(username)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)
	var body struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Refresh != "" {
		s.tokens.revoke(body.Refresh)
	}
	writeDetail(w, http.StatusOK, "logged out")
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, _ := s.snapshot(accountFromContext(r))
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       *string `json:"email"`
		DisplayName *string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid profile")
		return
	}
	acct := accountFromContext(r)
	s.mu.Lock()
	if body.Email != nil {
		acct.user.Email = *body.Email
	}
	if body.DisplayName != nil {
		acct.user.DisplayName = *body.DisplayName
	}
	user := acct.user
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	user, _ := s.snapshot(accountFromContext(r))
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok", "user": user.Username})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	user, roles := s.snapshot(accountFromContext(r))
	if !slices.Contains(roles, "admin") {
		writeDetail(w, http.StatusForbidden, "admin role required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "admin", "user": user.Username})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
