// Package navigation defines the router collaborator the client redirects
// through and the pre-navigation route guard.
//
// # Redirects
//
// The client calls [Navigator.Navigate] with one of [RouteLogin],
// [RouteHome] or [RouteNotFound]. Login redirects carry the destination the
// user was trying to reach in [NavigateOptions.RedirectTarget].
//
// # Architecture boundaries
//
// This package decides where to go; it never renders views and never
// mutates session state.
//
// # What this package must NOT do
//
//   - Import authclient (the client depends on this package, not the reverse).
//   - Perform network I/O.
package navigation
