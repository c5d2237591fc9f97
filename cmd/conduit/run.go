package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/server"
	"mercator-hq/conduit/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy server",
	Long: `Start the proxy server with the specified configuration.

The server listens on the configured address and serves /proxy, /stream,
/validate and /health. When a config file is given it is watched; changes
to the rate limit and log level apply without a restart.

Examples:
  # Start with built-in defaults
  conduit run

  # Start with a config file
  conduit run --config /etc/conduit/config.yaml

  # Override listen address
  conduit run --listen 0.0.0.0:8080

  # Validate config without starting server
  conduit run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	config.SetOverrides(flagOverrides()...)
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(out, cfg)

	srv, err := server.New(cfg, server.Options{
		Version: Version,
		Logger:  logger,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if cfgFile != "" {
		watcher, err := config.NewWatcher(cfgFile, 0, logger.Logger)
		if err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		} else {
			watcher.Subscribe(srv.ApplyConfig)
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Warn("config watcher exited", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, server.PathHealth)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// flagOverrides turns the run flags into config overrides, which are
// reapplied on every hot reload.
func flagOverrides() []config.Override {
	var fns []config.Override
	if addr := runFlags.listenAddress; addr != "" {
		fns = append(fns, func(c *config.Config) { c.Server.ListenAddress = addr })
	}
	level := runFlags.logLevel
	if verbose {
		level = "debug"
	}
	if level != "" {
		fns = append(fns, func(c *config.Config) { c.Telemetry.Logging.Level = level })
	}
	return fns
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Conduit v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	} else {
		fmt.Fprintln(out, "Using built-in configuration defaults")
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("rate limit",
		"enabled", cfg.RateLimit.Enabled,
		"requests", cfg.RateLimit.Requests,
		"window", cfg.RateLimit.Window.String(),
	)
	if cfg.Usage.Enabled {
		slog.Debug("usage accounting enabled", "backend", cfg.Usage.Backend)
	}
}
