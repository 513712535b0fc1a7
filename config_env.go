package authclient

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable read by [LoadConfigFromEnv].
const EnvPrefix = "AUTHCLIENT_"

// LoadConfigFromEnv starts from [DefaultConfig], loads the given dotenv files
// (".env" when none are given; missing files are ignored) and overlays
// AUTHCLIENT_* variables, for example AUTHCLIENT_HTTP_BASE_URL or
// AUTHCLIENT_REFRESH_COALESCE. Variables already set in the process win over
// dotenv files. The result is validated.
func LoadConfigFromEnv(paths ...string) (Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", p, err)
		}
	}

	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
