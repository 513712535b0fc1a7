// Package audit implements async event dispatching for client auth events.
//
// # Components
//
//   - [Sink] is the interface for event consumers.
//   - [Dispatcher] is a buffered async relay with drop-if-full or
//     block-if-full semantics.
//
// Both are generic over the event type; the root package owns the event
// model and the concrete sinks.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the client does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authclient or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
