// Package internal groups the private building blocks of authclient.
//
// # Sub-packages
//
//   - audit: generic async event dispatch with drop-if-full back-pressure
//   - flows: refresh coordination and logout decisions as plain functions
//   - metrics: lock-free counters and latency histograms
//   - pipeline: the generic middleware chain every request runs through
//
// # What this package must NOT do
//
//   - Export types that appear in the public authclient API.
//   - Be imported by any package outside the authclient module.
package internal
