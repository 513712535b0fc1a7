// Package token reads the registered claims of access tokens on the client
// side so refreshes can be scheduled before a token expires.
//
// Signatures are never verified here: the client holds no verification key
// and treats every access token as opaque for authorization purposes.
package token
