package authclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/MrEthical07/authclient/internal/audit"
	"github.com/MrEthical07/authclient/internal/pipeline"
	"github.com/MrEthical07/authclient/navigation"
	"github.com/MrEthical07/authclient/storage"
)

// Builder assembles a [Client]. A Builder is single use.
type Builder struct {
	config Config

	store      storage.Storage
	navigator  navigation.Navigator
	httpClient *http.Client
	transport  http.RoundTripper
	auditSink  AuditSink
	logger     *slog.Logger
	now        func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets HTTP.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.HTTP.BaseURL = baseURL
	return b
}

// WithStorage sets where the session is persisted. Defaults to an
// in-memory store.
func (b *Builder) WithStorage(s storage.Storage) *Builder {
	b.store = s
	return b
}

// WithNavigator sets the router collaborator. Defaults to navigation.Nop.
func (b *Builder) WithNavigator(n navigation.Navigator) *Builder {
	b.navigator = n
	return b
}

// WithHTTPClient supplies the HTTP client. Its Timeout wins over
// HTTP.Timeout.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTransport sets the round tripper of the HTTP client the builder
// creates. Ignored when WithHTTPClient is used.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.transport = rt
	return b
}

// WithAuditSink sets where audit events go. Events are only dispatched when
// Audit.Enabled is set; a nil sink drops them.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger. Defaults to discarding.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the per-attempt latency histogram. It has no
// effect while metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the clock used for proactive refresh decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, restores the persisted session when
// Session.RestoreOnBuild is set, and returns a ready client. Restoring is
// best effort: unreadable storage yields an empty session.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.HTTP.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("HTTP BaseURL is invalid: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		baseURL:   base,
		navigator: b.navigator,
		logger:    b.logger,
		now:       b.now,
		http:      b.httpClient,
	}
	if c.navigator == nil {
		c.navigator = navigation.Nop{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.http == nil {
		c.http = &http.Client{
			Timeout:   cfg.HTTP.Timeout,
			Transport: b.transport,
		}
	}

	store := b.store
	if store == nil {
		store = storage.NewMemory()
	}

	c.metrics = NewMetrics(cfg.Metrics)
	c.audit = audit.NewDispatcher[AuditEvent](audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	c.session = newSessionState(store, c.logger, func() {
		c.metrics.Inc(MetricStorageFailure)
	})

	// -------- PIPELINES --------
	c.authed = pipeline.Chain(c.transport,
		c.requestIDMiddleware(),
		c.recoverMiddleware,
		c.dispatchMiddleware(dispatchOptions{bearer: true, proactive: cfg.Refresh.Proactive}),
		c.observeMiddleware,
	)
	c.direct = pipeline.Chain(c.transport,
		c.requestIDMiddleware(),
		c.dispatchMiddleware(dispatchOptions{}),
		c.observeMiddleware,
	)
	c.bearerOnly = pipeline.Chain(c.transport,
		c.requestIDMiddleware(),
		c.dispatchMiddleware(dispatchOptions{bearer: true}),
		c.observeMiddleware,
	)

	if cfg.Session.RestoreOnBuild {
		c.session.restore(ctx)
	}

	b.built = true

	return c, nil
}
