// Package flows holds the decision logic of the client as plain functions
// driven by dependency structs, so each branch can be exercised without a
// transport or a session store.
//
// # Flows
//
//   - [Classify] maps a status code or transport error to a [FailureKind].
//   - [RunRecovery] is the refresh coordinator: 401 → refresh and replay
//     once, 403 → home, 404 → not found, everything else recorded.
//   - [RunLogout] performs best-effort server invalidation followed by an
//     unconditional local clear.
//
// # What this package must NOT do
//
//   - Import authclient or perform I/O directly.
//   - Retry more than once per logical request.
package flows
