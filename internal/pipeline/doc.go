// Package pipeline provides the ordered middleware chain used by the client
// to send requests.
//
// # Design
//
// A chain is a terminal [Handler] (the transport) wrapped by [Middleware]
// values. Middlewares are plain functions, so each stage can be tested in
// isolation by chaining it around a fake terminal.
//
// # Architecture boundaries
//
// This package is generic over the call and response types. It does not know
// about HTTP, tokens, or sessions.
//
// # What this package must NOT do
//
//   - Import authclient or any sibling package.
//   - Perform I/O.
package pipeline
