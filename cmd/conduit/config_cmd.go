package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file with environment overrides applied and
report every invalid field.

Examples:
  conduit config validate --config config.yaml
  CONDUIT_RATE_LIMIT_REQUESTS=0 conduit config validate -c config.yaml`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) && len(verr.Errors) > 0 {
			fe := verr.Errors[0]
			if len(verr.Errors) == 1 {
				return cli.NewConfigError(fe.Field, fe.Message)
			}
			return cli.NewConfigError("", verr.Error())
		}
		return cli.NewConfigError("", err.Error())
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Configuration valid")
	if verbose {
		fmt.Fprintf(out, "  listen address: %s\n", cfg.Server.ListenAddress)
		fmt.Fprintf(out, "  rate limit: %t (%d per %s)\n", cfg.RateLimit.Enabled, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		fmt.Fprintf(out, "  usage: %t (%s)\n", cfg.Usage.Enabled, cfg.Usage.Backend)
		fmt.Fprintf(out, "  metrics: %t, tracing: %t\n", cfg.Telemetry.Metrics.Enabled, cfg.Telemetry.Tracing.Enabled)
	}
	return nil
}
