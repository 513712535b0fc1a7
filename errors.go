package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork reports a transport failure: unreachable host, reset
	// connection or timeout. It is never retried.
	ErrNetwork = errors.New("network error")
	// ErrAuthFailed reports a 401 the client could not recover from.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrForbidden reports a 403 response.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound reports a 404 response.
	ErrNotFound = errors.New("not found")
	// ErrServer reports a 5xx response.
	ErrServer = errors.New("server error")
	// ErrRequest reports any other non-2xx response.
	ErrRequest = errors.New("request rejected")
	// ErrRefreshFailed reports that exchanging the refresh token failed.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNoRefreshToken is returned by Refresh when the session holds no
	// refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMalformedResponse reports a response body that could not be decoded
	// or lacked required fields.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrClientClosed is returned by Do after Close.
	ErrClientClosed = errors.New("client closed")
)

// ResponseError is returned for every non-2xx response. errors.Is matches it
// against the sentinel for its status class.
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("authclient: %s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Unwrap returns the sentinel for the status code.
func (e *ResponseError) Unwrap() error {
	return statusSentinel(e.StatusCode)
}

// Detail returns the "detail" field of a JSON error body, if any.
func (e *ResponseError) Detail() string {
	var body struct {
		Detail string `json:"detail"`
	}
	if len(e.Body) == 0 || json.Unmarshal(e.Body, &body) != nil {
		return ""
	}
	return body.Detail
}

func statusSentinel(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrAuthFailed
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return ErrServer
	case code >= 300 && code < 500:
		return ErrRequest
	default:
		return ErrMalformedResponse
	}
}

// RefreshError is returned when a 401 could not be recovered because the
// refresh call failed. It matches ErrRefreshFailed, the original 401
// (ErrAuthFailed, *ResponseError) and the refresh cause.
type RefreshError struct {
	// Original is the 401 that triggered the refresh.
	Original error
	// Err is the refresh failure.
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("authclient: token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Original, e.Err}
}
