package navigation

import "context"

// Route is the part of a route definition the guard reads.
type Route struct {
	Name          string
	Path          string
	RequiresAuth  bool
	RequiresAdmin bool
}

// SessionView is the read side of the session the guard depends on.
// *authclient.Client satisfies it.
type SessionView interface {
	IsAuthenticated() bool
	IsAdmin() bool
}

// GuardRoutes names the routes the guard redirects to.
type GuardRoutes struct {
	Login string
	Home  string
}

// DefaultGuardRoutes returns the login and home route names.
func DefaultGuardRoutes() GuardRoutes {
	return GuardRoutes{Login: RouteLogin, Home: RouteHome}
}

// Decision is the outcome of [Guard].
type Decision struct {
	Allowed bool
	// Route is the redirect destination when Allowed is false.
	Route string
	// RedirectTarget is set on login redirects so the router can resume.
	RedirectTarget string
}

// Guard describes the pre-navigation check and its observable behavior.
//
// Routes that require authentication send anonymous users to the login route
// with the requested path as redirect target. Routes that require the admin
// role send authenticated non-admins to the home route. A nil view is treated
// as anonymous.
func Guard(view SessionView, to Route, routes GuardRoutes) Decision {
	if routes.Login == "" {
		routes.Login = RouteLogin
	}
	if routes.Home == "" {
		routes.Home = RouteHome
	}

	needsAuth := to.RequiresAuth || to.RequiresAdmin
	authenticated := view != nil && view.IsAuthenticated()

	if needsAuth && !authenticated {
		target := to.Path
		if target == "" {
			target = to.Name
		}
		return Decision{Route: routes.Login, RedirectTarget: target}
	}
	if to.RequiresAdmin && !view.IsAdmin() {
		return Decision{Route: routes.Home}
	}
	return Decision{Allowed: true}
}

// Apply runs [Guard] and performs the redirect through nav when the
// navigation is denied. It reports whether the navigation may proceed.
func Apply(ctx context.Context, nav Navigator, view SessionView, to Route, routes GuardRoutes) bool {
	d := Guard(view, to, routes)
	if d.Allowed {
		return true
	}
	if nav != nil {
		nav.Navigate(ctx, d.Route, NavigateOptions{RedirectTarget: d.RedirectTarget})
	}
	return false
}
