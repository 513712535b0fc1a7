// Package authtest runs an in-process auth API for tests, demos and load
// runs.
//
// The server speaks the same endpoints as the production backend: login,
// register, token refresh, logout and profile, plus a handful of fixed
// status routes (403, 404, 500, 400, always-401) used to drive the client's
// failure branches. Access tokens are HS256 JWTs; refresh tokens are opaque.
// Passwords are stored as argon2id hashes.
//
// Tests steer the server with [Server.ExpireAccessTokens],
// [Server.RevokeRefreshTokens] and [Server.SetRefreshDelay], and inspect it
// with [Server.Requests] and [Server.RefreshCalls].
package authtest
