package authclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one logical call. The client never mutates a Request:
// each attempt works on its own copy of the headers.
type Request struct {
	Method string
	// Path is resolved against the configured base URL. Absolute URLs are
	// used as is.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest builds a request with a raw body.
func NewRequest(method, path string, body []byte) Request {
	return Request{Method: method, Path: path, Body: body}
}

// NewJSONRequest builds a request whose body is v encoded as JSON. A nil v
// produces an empty body.
func NewJSONRequest(method, path string, v any) (Request, error) {
	req := Request{Method: method, Path: path}
	if v == nil {
		return req, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return Request{}, fmt.Errorf("authclient: encode request body: %w", err)
	}
	req.Body = body
	req.Header = http.Header{"Content-Type": []string{"application/json"}}
	return req, nil
}

// WithHeader returns a copy of r with key set to value.
func (r Request) WithHeader(key, value string) Request {
	r.Header = r.Header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set(key, value)
	return r
}

// WithQuery returns a copy of r with the given query parameters.
func (r Request) WithQuery(q url.Values) Request {
	r.Query = cloneValues(q)
	return r
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	return url.Values(http.Header(v).Clone())
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}
