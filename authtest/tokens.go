package authtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "authtest"

var errTokenRejected = errors.New("authtest: token rejected")

// accessClaims are the claims carried by issued access tokens. Gen ties a
// token to the server's current generation so tests can expire every
// outstanding token at once.
type accessClaims struct {
	Gen uint64 `json:"gen"`
	jwt.RegisteredClaims
}

// tokenIssuer signs HS256 access tokens and keeps opaque refresh tokens in
// memory.
type tokenIssuer struct {
	key       []byte
	accessTTL time.Duration

	mu      sync.Mutex
	gen     uint64
	refresh map[string]string // refresh token -> username
}

func newTokenIssuer(accessTTL time.Duration) *tokenIssuer {
	return &tokenIssuer{
		key:       []byte(uuid.NewString() + uuid.NewString()),
		accessTTL: accessTTL,
		refresh:   make(map[string]string),
	}
}

func (t *tokenIssuer) issueAccess(username string) (string, error) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()

	now := time.Now()
	claims := accessClaims{
		Gen: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

func (t *tokenIssuer) issueRefresh(username string) string {
	raw := uuid.NewString()
	t.mu.Lock()
	t.refresh[raw] = username
	t.mu.Unlock()
	return raw
}

// parseAccess verifies signature, issuer, expiry and generation and returns
// the subject.
func (t *tokenIssuer) parseAccess(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	tok, err := parser.ParseWithClaims(raw, &accessClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", tok.Method.Alg())
		}
		return t.key, nil
	})
	if err != nil {
		return "", errors.Join(errTokenRejected, err)
	}
	claims, ok := tok.Claims.(*accessClaims)
	if !ok || !tok.Valid {
		return "", errTokenRejected
	}

	t.mu.Lock()
	current := t.gen
	t.mu.Unlock()
	if claims.Gen != current {
		return "", errTokenRejected
	}
	return claims.Subject, nil
}

// redeem validates a refresh token. With rotate set the token is consumed
// and the caller must issue a replacement.
func (t *tokenIssuer) redeem(raw string, rotate bool) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	username, ok := t.refresh[raw]
	if !ok {
		return "", false
	}
	if rotate {
		delete(t.refresh, raw)
	}
	return username, true
}

func (t *tokenIssuer) revoke(raw string) {
	t.mu.Lock()
	delete(t.refresh, raw)
	t.mu.Unlock()
}

func (t *tokenIssuer) expireAccess() {
	t.mu.Lock()
	t.gen++
	t.mu.Unlock()
}

func (t *tokenIssuer) revokeAllRefresh() {
	t.mu.Lock()
	clear(t.refresh)
	t.mu.Unlock()
}
