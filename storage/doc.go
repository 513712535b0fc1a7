// Package storage provides the durable key-value backends that persist the
// client session: [Memory] for tests and short-lived processes, [Redis] for
// shared or server-side deployments, and [File] for CLIs that must survive
// restarts.
//
// # Persisted layout
//
// The client writes four string keys: "token", "refreshToken", "user" (JSON)
// and "roles" (JSON array). Absent values are deleted rather than stored as
// empty strings.
//
// # Architecture boundaries
//
// This package stores strings. It does not parse tokens, decode profiles, or
// decide when the session changes; the client owns those rules.
//
// # What this package must NOT do
//
//   - Import authclient or any sibling package.
//   - Log stored values.
package storage
