package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/navigation"
	"github.com/spf13/cobra"
)

type options struct {
	envFile   string
	baseURL   string
	backend   string
	filePath  string
	redisAddr string
	logLevel  string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "authclient",
		Short: "Authenticated HTTP client with transparent token refresh",
		Long: `authclient signs in against an auth API, persists the session, and
sends requests with the current bearer token. A 401 is recovered with one
token refresh and one replay; a session that cannot be recovered is cleared.

Configuration is read from AUTHCLIENT_* environment variables and an
optional dotenv file; flags override both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with AUTHCLIENT_* variables")
	flags.StringVar(&opts.baseURL, "base-url", "", "API base URL (overrides AUTHCLIENT_HTTP_BASE_URL)")
	flags.StringVar(&opts.backend, "storage", "", "session storage backend: file, redis or memory")
	flags.StringVar(&opts.filePath, "session-file", "", "session file for the file backend")
	flags.StringVar(&opts.redisAddr, "redis-addr", "", "redis address for the redis backend")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		refreshCmd(opts),
		requestCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "authclient version %s\n", version)
			},
		},
	)
	return cmd
}

func (o *options) config() (authclient.Config, error) {
	cfg, err := authclient.LoadConfigFromEnv(o.envFile)
	if err != nil {
		return authclient.Config{}, err
	}
	if o.baseURL != "" {
		cfg.HTTP.BaseURL = o.baseURL
	}

	// The CLI only makes sense with durable storage, so it defaults to a
	// file under the user config directory.
	if o.backend != "" {
		cfg.Storage.Backend = authclient.StorageBackend(o.backend)
	} else if cfg.Storage.Backend == authclient.StorageMemory {
		cfg.Storage.Backend = authclient.StorageFile
	}
	if o.filePath != "" {
		cfg.Storage.FilePath = o.filePath
	}
	if cfg.Storage.Backend == authclient.StorageFile && cfg.Storage.FilePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return authclient.Config{}, fmt.Errorf("locate config dir: %w", err)
		}
		cfg.Storage.FilePath = filepath.Join(dir, "authclient", "session.yaml")
	}
	if o.redisAddr != "" {
		cfg.Storage.RedisAddr = o.redisAddr
	}
	if err := cfg.Validate(); err != nil {
		return authclient.Config{}, err
	}
	return cfg, nil
}

// open builds a client over the configured storage. The returned function
// closes both.
func (o *options) open(ctx context.Context, stderr io.Writer) (*authclient.Client, func(), error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := authclient.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLevel(o.logLevel)}))
	nav := navigation.NavigatorFunc(func(_ context.Context, route string, opts navigation.NavigateOptions) {
		if opts.RedirectTarget != "" {
			fmt.Fprintf(stderr, "-> %s (return to %s)\n", route, opts.RedirectTarget)
			return
		}
		fmt.Fprintf(stderr, "-> %s\n", route)
	})

	client, err := authclient.New().
		WithConfig(cfg).
		WithStorage(store).
		WithNavigator(nav).
		WithLogger(logger).
		Build(ctx)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	return client, func() {
		client.Close()
		_ = closeStore()
	}, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
