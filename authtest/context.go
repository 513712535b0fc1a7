package authtest

import (
	"context"
	"net/http"
)

func contextWithAccount(r *http.Request, acct *account) context.Context {
	return context.WithValue(r.Context(), userContextKey{}, acct)
}

func accountFromContext(r *http.Request) *account {
	acct, _ := r.Context().Value(userContextKey{}).(*account)
	return acct
}
