package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/MrEthical07/authclient/storage"
)

// Persisted session keys.
const (
	KeyAccessToken  = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyRoles        = "roles"
)

var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser, KeyRoles}

// Session is a copy of the client's authentication state. An empty
// AccessToken means the client is not authenticated.
type Session struct {
	AccessToken  string
	RefreshToken string
	// User is the raw JSON profile, nil when absent.
	User  json.RawMessage
	Roles []string
}

// IsAuthenticated reports whether an access token is present.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// HasRole reports whether role is among the session roles.
func (s Session) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

func (s Session) clone() Session {
	s.User = bytes.Clone(s.User)
	s.Roles = slices.Clone(s.Roles)
	return s
}

// sessionState is the single shared session. Every mutation holds the write
// lock across the storage write, so memory and storage change in the same
// order.
type sessionState struct {
	mu    sync.RWMutex
	cur   Session
	store storage.Storage

	logger       *slog.Logger
	onStoreError func()
}

func newSessionState(store storage.Storage, logger *slog.Logger, onStoreError func()) *sessionState {
	return &sessionState{store: store, logger: logger, onStoreError: onStoreError}
}

// restore reads the persisted session. Unreadable values default to empty.
func (s *sessionState) restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next Session
	read := func(key string) string {
		v, ok, err := s.store.Get(ctx, key)
		if err != nil {
			s.storeFailed("restore", err)
			return ""
		}
		if !ok {
			return ""
		}
		return v
	}

	next.AccessToken = read(KeyAccessToken)
	next.RefreshToken = read(KeyRefreshToken)
	if raw := read(KeyUser); raw != "" && raw != "null" && json.Valid([]byte(raw)) {
		next.User = json.RawMessage(raw)
	}
	if raw := read(KeyRoles); raw != "" {
		var roles []string
		if err := json.Unmarshal([]byte(raw), &roles); err == nil {
			next.Roles = roles
		} else {
			s.logger.Warn("authclient: discarding unreadable persisted roles", "error", err)
		}
	}
	s.cur = next
}

func (s *sessionState) snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

func (s *sessionState) accessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken
}

func (s *sessionState) refreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.RefreshToken
}

func (s *sessionState) tokens() (access, refresh string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.AccessToken, s.cur.RefreshToken
}

func (s *sessionState) isAuthenticated() bool {
	return s.accessToken() != ""
}

func (s *sessionState) hasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.HasRole(role)
}

// replace swaps in a whole new session, as login does.
func (s *sessionState) replace(ctx context.Context, next Session) {
	next = next.clone()
	if next.Roles == nil {
		next.Roles = []string{}
	}

	batch := storage.Batch{Set: map[string]string{}}
	putOrDelete(&batch, KeyAccessToken, next.AccessToken)
	putOrDelete(&batch, KeyRefreshToken, next.RefreshToken)
	putOrDelete(&batch, KeyUser, string(next.User))
	roles, _ := json.Marshal(next.Roles)
	batch.Set[KeyRoles] = string(roles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = next
	s.apply(ctx, "replace", batch)
}

// setTokens stores a refreshed token pair. An empty refresh keeps the
// current refresh token.
func (s *sessionState) setTokens(ctx context.Context, access, refresh string) {
	batch := storage.Batch{Set: map[string]string{}}
	putOrDelete(&batch, KeyAccessToken, access)
	if refresh != "" {
		batch.Set[KeyRefreshToken] = refresh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.AccessToken = access
	if refresh != "" {
		s.cur.RefreshToken = refresh
	}
	s.apply(ctx, "set tokens", batch)
}

// setTokensIf stores a refreshed pair only when the session still holds
// expectRefresh. It reports whether the pair was stored.
func (s *sessionState) setTokensIf(ctx context.Context, expectRefresh, access, refresh string) bool {
	batch := storage.Batch{Set: map[string]string{}}
	putOrDelete(&batch, KeyAccessToken, access)
	if refresh != "" {
		batch.Set[KeyRefreshToken] = refresh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.RefreshToken != expectRefresh {
		return false
	}
	s.cur.AccessToken = access
	if refresh != "" {
		s.cur.RefreshToken = refresh
	}
	s.apply(ctx, "set tokens", batch)
	return true
}

func (s *sessionState) setUser(ctx context.Context, user json.RawMessage) {
	user = bytes.Clone(user)
	batch := storage.Batch{Set: map[string]string{}}
	putOrDelete(&batch, KeyUser, string(user))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.User = user
	s.apply(ctx, "set user", batch)
}

// clear wipes memory and every persisted key. It never fails.
func (s *sessionState) clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Session{}
	s.apply(ctx, "clear", storage.Batch{Delete: sessionKeys})
}

func (s *sessionState) apply(ctx context.Context, op string, batch storage.Batch) {
	// Storage writes must land even when the caller's ctx was canceled by
	// the failure that triggered them.
	if err := s.store.Apply(context.WithoutCancel(ctx), batch); err != nil {
		s.storeFailed(op, err)
	}
}

func (s *sessionState) storeFailed(op string, err error) {
	s.logger.Error("authclient: session storage failed", "op", op, "error", err)
	if s.onStoreError != nil {
		s.onStoreError()
	}
}

func putOrDelete(b *storage.Batch, key, value string) {
	if value == "" || value == "null" {
		b.Delete = append(b.Delete, key)
		return
	}
	b.Set[key] = value
}
