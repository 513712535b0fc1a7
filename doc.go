// Package authclient provides an authenticated HTTP client with transparent
// token refresh: every call carries the current bearer token, a 401 triggers
// at most one refresh and one replay, and an unrecoverable auth failure
// clears the session and sends the router to the login view.
//
// The [Client] is safe for concurrent use after [Builder.Build]. Concurrent
// 401s holding the same refresh token share one refresh call.
//
// # Architecture boundaries
//
// authclient is the public surface. It exposes [Client], [Builder], [Config],
// [Session], [Request] and [Response]. The middleware chain and the recovery
// decision logic live under internal/ and are never exported. Persistence is
// delegated to the storage package and routing to the navigation package.
//
// # Pipeline
//
// Each logical request runs through, outermost first:
//
//	request ID -> recovery -> bearer/headers -> observe -> transport
//
// Recovery sits outside bearer injection so that a replay picks up the
// refreshed token. Login, Register and the refresh call itself use a chain
// without recovery.
//
// # What this package must NOT do
//
//   - Retry a logical request more than once.
//   - Log or audit token values.
//   - Return storage failures to callers; they are logged and counted.
//   - Import any sub-package that re-imports authclient (no import cycles).
package authclient
