package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when the token is opaque rather than a compact JWT.
var ErrNotJWT = errors.New("token is not a jwt")

// Claims is the subset of registered claims the client cares about.
type Claims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carried an exp claim.
func (c Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// Inspect decodes the claims of a compact JWT without verifying its
// signature. The client never trusts these values for authorization; it only
// uses them to schedule refreshes.
func Inspect(raw string) (Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	var rc jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(raw, &rc); err != nil {
		return Claims{}, errors.Join(ErrNotJWT, err)
	}

	out := Claims{
		Subject: rc.Subject,
		ID:      rc.ID,
	}
	if rc.IssuedAt != nil {
		out.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}

// ExpiresAt returns the exp claim of raw, or ok == false for opaque tokens
// and tokens without exp.
func ExpiresAt(raw string) (time.Time, bool) {
	c, err := Inspect(raw)
	if err != nil || !c.HasExpiry() {
		return time.Time{}, false
	}
	return c.ExpiresAt, true
}

// ExpiresWithin reports whether raw expires before now+window. Tokens whose
// expiry cannot be read never report true.
func ExpiresWithin(raw string, window time.Duration, now time.Time) bool {
	exp, ok := ExpiresAt(raw)
	if !ok {
		return false
	}
	return !exp.After(now.Add(window))
}
