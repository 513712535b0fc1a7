package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authclient/internal/pipeline"
	"github.com/MrEthical07/authclient/token"
	"github.com/google/uuid"
)

// dispatchOptions selects what the dispatcher attaches to an attempt.
type dispatchOptions struct {
	bearer    bool
	proactive bool
}

// requestIDMiddleware assigns one ID per logical request. It sits outside
// recovery so a replay reuses the ID.
func (c *Client) requestIDMiddleware() pipeline.Middleware[*call, *Response] {
	return pipeline.Func[*call, *Response](func(_ context.Context, cl *call) (*call, error) {
		if cl.requestID == "" {
			cl.requestID = cl.req.Header.Get(c.cfg.HTTP.RequestIDHeader)
		}
		if cl.requestID == "" {
			cl.requestID = uuid.NewString()
		}
		return cl, nil
	})
}

// dispatchMiddleware builds the outgoing headers for one attempt: defaults,
// caller headers, request ID, then the bearer token, which overwrites any
// caller-supplied Authorization.
func (c *Client) dispatchMiddleware(opts dispatchOptions) pipeline.Middleware[*call, *Response] {
	return pipeline.Func[*call, *Response](func(ctx context.Context, cl *call) (*call, error) {
		if opts.proactive {
			c.maybeRefreshEarly(ctx, cl)
		}

		h := make(http.Header, len(c.cfg.HTTP.DefaultHeaders)+len(cl.req.Header)+2)
		for k, v := range c.cfg.HTTP.DefaultHeaders {
			h.Set(k, v)
		}
		if c.cfg.HTTP.UserAgent != "" {
			h.Set("User-Agent", c.cfg.HTTP.UserAgent)
		}
		for k, vs := range cl.req.Header {
			h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
		}
		if c.cfg.HTTP.RequestIDHeader != "" && cl.requestID != "" {
			h.Set(c.cfg.HTTP.RequestIDHeader, cl.requestID)
		}

		cl.sentToken = ""
		if opts.bearer {
			if tok := c.session.accessToken(); tok != "" {
				h.Set("Authorization", "Bearer "+tok)
				cl.sentToken = tok
			}
		}
		cl.header = h
		return cl, nil
	})
}

// maybeRefreshEarly refreshes before sending when the access token is about
// to expire. Failure is only logged: the attempt goes out with the current
// token and the 401 path decides. A server rejection is remembered on cl so
// that path does not exchange the same refresh token again.
func (c *Client) maybeRefreshEarly(ctx context.Context, cl *call) {
	if cl.attempt > 0 {
		return
	}
	access, refresh := c.session.tokens()
	if access == "" || refresh == "" {
		return
	}
	if !token.ExpiresWithin(access, c.cfg.Refresh.ProactiveSkew, c.now()) {
		return
	}
	c.metrics.Inc(MetricProactiveRefresh)
	if err := c.refreshTokens(ctx); err != nil {
		var rejected *ResponseError
		if errors.As(err, &rejected) {
			cl.earlyRefreshToken, cl.earlyRefreshErr = refresh, err
		}
		c.logger.Debug("authclient: proactive refresh failed",
			"request_id", cl.requestID,
			"error", err,
		)
	}
}

// observeMiddleware records per-attempt latency and logs the attempt.
func (c *Client) observeMiddleware(next handler) handler {
	return func(ctx context.Context, cl *call) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, cl)
		elapsed := time.Since(start)
		c.metrics.Observe(MetricRequestLatency, elapsed)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.logger.Debug("authclient: attempt",
			"request_id", cl.requestID,
			"method", cl.req.Method,
			"path", cl.req.Path,
			"attempt", cl.attempt,
			"status", status,
			"duration", elapsed,
			"error", err,
		)
		return resp, err
	}
}

// transport is the terminal handler. It returns any HTTP response as is and
// reserves the error for transport failures.
func (c *Client) transport(ctx context.Context, cl *call) (*Response, error) {
	var body io.Reader
	if len(cl.req.Body) > 0 {
		body = bytes.NewReader(cl.req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, cl.req.Method, cl.url, body)
	if err != nil {
		return nil, fmt.Errorf("authclient: build request: %w", err)
	}
	if cl.header != nil {
		hreq.Header = cl.header
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, cl.req.Method, cl.req.Path, err)
	}
	defer hresp.Body.Close()

	limit := c.cfg.HTTP.MaxResponseBytes
	data, err := io.ReadAll(io.LimitReader(hresp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", ErrNetwork, cl.req.Method, cl.req.Path, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s %s: response exceeds limit of %d bytes", ErrMalformedResponse, cl.req.Method, cl.req.Path, limit)
	}
	return &Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       data,
	}, nil
}

func responseError(cl *call, resp *Response) *ResponseError {
	return &ResponseError{
		Method:     cl.req.Method,
		URL:        cl.req.Path,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}
}

// sendDirect runs req through a chain without recovery and converts non-2xx
// responses into *ResponseError.
func (c *Client) sendDirect(ctx context.Context, h handler, req Request) (*Response, error) {
	cl, err := c.newCall(req)
	if err != nil {
		return nil, err
	}
	resp, err := h(ctx, cl)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, responseError(cl, resp)
	}
	return resp, nil
}
