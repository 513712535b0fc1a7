package authclient

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. Start from [DefaultConfig] and
// override fields; the zero value does not validate.
type Config struct {
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Endpoints EndpointsConfig `envPrefix:"ENDPOINT_"`
	Routes    RoutesConfig    `envPrefix:"ROUTE_"`
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
}

/*
====================================
HTTP CONFIG
====================================
*/

// HTTPConfig controls the outbound transport.
type HTTPConfig struct {
	// BaseURL is joined with every relative request path.
	BaseURL string `env:"BASE_URL"`
	// Timeout bounds each attempt. Zero disables the client-side timeout.
	Timeout time.Duration `env:"TIMEOUT"`
	// DefaultHeaders are applied before caller headers.
	DefaultHeaders  map[string]string `env:"DEFAULT_HEADERS"`
	UserAgent       string            `env:"USER_AGENT"`
	RequestIDHeader string            `env:"REQUEST_ID_HEADER"`
	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64 `env:"MAX_RESPONSE_BYTES"`
}

/*
====================================
ENDPOINTS CONFIG
====================================
*/

// EndpointsConfig names the auth API paths.
type EndpointsConfig struct {
	Login               string `env:"LOGIN"`
	Register            string `env:"REGISTER"`
	Refresh             string `env:"REFRESH"`
	Logout              string `env:"LOGOUT"`
	Profile             string `env:"PROFILE"`
	UpdateProfileMethod string `env:"UPDATE_PROFILE_METHOD"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the router destinations used on failure.
type RoutesConfig struct {
	Login    string `env:"LOGIN"`
	Home     string `env:"HOME"`
	NotFound string `env:"NOT_FOUND"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls token refresh.
type RefreshConfig struct {
	// Coalesce makes concurrent 401s share one refresh call.
	Coalesce bool `env:"COALESCE"`
	// Proactive refreshes before dispatch when the access token is a JWT
	// expiring within ProactiveSkew.
	Proactive     bool          `env:"PROACTIVE"`
	ProactiveSkew time.Duration `env:"PROACTIVE_SKEW"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls how the session is interpreted.
type SessionConfig struct {
	// AdminRole is the role IsAdmin checks for.
	AdminRole string `env:"ADMIN_ROLE"`
	// RestoreOnBuild loads the persisted session during Build.
	RestoreOnBuild bool `env:"RESTORE_ON_BUILD"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the persistent storage opened by [OpenStorage].
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
)

// StorageConfig describes a storage backend for [OpenStorage]. Builders that
// receive a storage.Storage directly ignore it.
type StorageConfig struct {
	Backend     StorageBackend `env:"BACKEND"`
	FilePath    string         `env:"FILE_PATH"`
	RedisAddr   string         `env:"REDIS_ADDR"`
	RedisDB     int            `env:"REDIS_DB"`
	RedisPrefix string         `env:"REDIS_PREFIX"`
	RedisTTL    time.Duration  `env:"REDIS_TTL"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults matching the reference backend.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 15 * time.Second,
			DefaultHeaders: map[string]string{
				"Content-Type": "application/json",
			},
			UserAgent:        "authclient/1",
			RequestIDHeader:  "X-Request-ID",
			MaxResponseBytes: 10 << 20,
		},
		Endpoints: EndpointsConfig{
			Login:               "/api/auth/login/",
			Register:            "/api/auth/register/",
			Refresh:             "/api/auth/token/refresh/",
			Logout:              "/api/auth/logout/",
			Profile:             "/api/auth/profile/",
			UpdateProfileMethod: http.MethodPatch,
		},
		Routes: RoutesConfig{
			Login:    "login",
			Home:     "home",
			NotFound: "not-found",
		},
		Refresh: RefreshConfig{
			Coalesce:      true,
			Proactive:     false,
			ProactiveSkew: 30 * time.Second,
		},
		Session: SessionConfig{
			AdminRole:      "admin",
			RestoreOnBuild: true,
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "authclient",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.HTTP.DefaultHeaders = maps.Clone(cfg.HTTP.DefaultHeaders)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// HTTP
	if strings.TrimSpace(c.HTTP.BaseURL) == "" {
		return errors.New("HTTP BaseURL is required")
	}
	u, err := url.Parse(c.HTTP.BaseURL)
	if err != nil {
		return fmt.Errorf("HTTP BaseURL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("HTTP BaseURL must use http or https")
	}
	if u.Host == "" {
		return errors.New("HTTP BaseURL must include a host")
	}
	if c.HTTP.Timeout < 0 {
		return errors.New("HTTP Timeout must be >= 0")
	}
	if c.HTTP.MaxResponseBytes <= 0 {
		return errors.New("HTTP MaxResponseBytes must be > 0")
	}
	for k := range c.HTTP.DefaultHeaders {
		if strings.EqualFold(k, "Authorization") {
			return errors.New("HTTP DefaultHeaders must not set Authorization")
		}
	}

	// Endpoints
	for name, path := range map[string]string{
		"Login":    c.Endpoints.Login,
		"Register": c.Endpoints.Register,
		"Refresh":  c.Endpoints.Refresh,
		"Logout":   c.Endpoints.Logout,
		"Profile":  c.Endpoints.Profile,
	} {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("Endpoints %s is required", name)
		}
	}
	switch c.Endpoints.UpdateProfileMethod {
	case http.MethodPatch, http.MethodPut, http.MethodPost:
	default:
		return errors.New("Endpoints UpdateProfileMethod must be PATCH, PUT or POST")
	}

	// Routes
	if c.Routes.Login == "" || c.Routes.Home == "" || c.Routes.NotFound == "" {
		return errors.New("Routes Login, Home and NotFound are required")
	}

	// Refresh
	if c.Refresh.ProactiveSkew < 0 {
		return errors.New("Refresh ProactiveSkew must be >= 0")
	}
	if c.Refresh.Proactive && c.Refresh.ProactiveSkew == 0 {
		return errors.New("Refresh ProactiveSkew must be > 0 when Proactive is true")
	}

	// Storage
	switch c.Storage.Backend {
	case "", StorageMemory:
	case StorageFile:
		if c.Storage.FilePath == "" {
			return errors.New("Storage FilePath is required for the file backend")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("Storage RedisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("Storage Backend %q is not supported", c.Storage.Backend)
	}
	if c.Storage.RedisTTL < 0 {
		return errors.New("Storage RedisTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
