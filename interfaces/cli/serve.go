package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/promote/domain/config"
	infraconfig "github.com/felixgeelhaar/promote/infrastructure/config"
	"github.com/felixgeelhaar/promote/infrastructure/logging"
	"github.com/felixgeelhaar/promote/interfaces/api"
)

type serveOptions struct {
	configPath string
	addr       string
	watch      bool
}

// newServeCmd creates the serve command.
func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the promotion HTTP API",
		Long: `Serve the promotion workflow over HTTP.

The caller is identified by the X-Actor header; mutating calls may carry an
Idempotency-Key header to make retries safe. With --watch (the default) the
reviewer roster and log level are reloaded when the configuration file
changes.

Examples:
  promote serve -c promote.yaml
  promote serve -c promote.yaml --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "Reload reviewers and log level on config changes")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts.configPath, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	rt, err := a.newRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if opts.watch {
		watcher, err := infraconfig.NewWatcher(opts.configPath, infraconfig.NewLoader(), rt.reload)
		if err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logging.Error().
					Add(logging.Component("cli")).
					Add(logging.ErrorField(err)).
					Msg("config watcher stopped")
			}
		}()
	}

	handler := api.NewHandler(rt.service,
		api.WithRateLimiter(api.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)),
	)
	return api.NewServer(handler.Routes(), cfg.Server).Run(ctx)
}

// reload applies the parts of a changed configuration that can change
// without a restart.
func (rt *runtime) reload(cfg *config.Config) {
	if cfg.Logging.Level != "" {
		logging.SetLevel(cfg.Logging.Level)
	}
	if rt.build.Roster != nil {
		rt.build.Roster.Update(cfg.Reviewers)
		return
	}
	if !cfg.Reviewers.IsEmpty() {
		logging.Warn().
			Add(logging.Component("cli")).
			Msg("reviewers were added to the configuration; restart to enforce the roster")
	}
}
