package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/keycheck"
	"mercator-hq/conduit/pkg/providerfactory"
	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/proxy"
)

var checkKeyFlags struct {
	provider string
	keyEnv   string
	output   string
}

var checkKeyCmd = &cobra.Command{
	Use:   "check-key",
	Short: "Check an API key against its vendor",
	Long: `Run the /validate check locally: the key format is checked first and,
if it matches, one minimal completion is sent to the vendor.

The key is read from an environment variable so that it never appears in
shell history or the process list.

Examples:
  OPENAI_API_KEY=sk-... conduit check-key --provider openai --key-env OPENAI_API_KEY
  conduit check-key --provider anthropic --key-env ANTHROPIC_API_KEY --output json`,
	Args: cobra.NoArgs,
	RunE: checkKey,
}

func init() {
	rootCmd.AddCommand(checkKeyCmd)

	checkKeyCmd.Flags().StringVarP(&checkKeyFlags.provider, "provider", "p", "", "provider id (openai, anthropic, google, deepseek, groq, together)")
	checkKeyCmd.Flags().StringVar(&checkKeyFlags.keyEnv, "key-env", "", "environment variable holding the API key")
	checkKeyCmd.Flags().StringVarP(&checkKeyFlags.output, "output", "o", "text", "output format: text, json")
	_ = checkKeyCmd.MarkFlagRequired("provider")
	_ = checkKeyCmd.MarkFlagRequired("key-env")
}

func checkKey(cmd *cobra.Command, args []string) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(checkKeyFlags.output))
	if err != nil {
		return err
	}

	apiKey := strings.TrimSpace(os.Getenv(checkKeyFlags.keyEnv))
	if apiKey == "" {
		return fmt.Errorf("environment variable %s is empty or unset", checkKeyFlags.keyEnv)
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	checker, closeFn, err := newKeyChecker(cfg)
	if err != nil {
		return cli.NewCommandError("check-key", err)
	}
	defer closeFn()

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	result, err := checker.Check(ctx, checkKeyFlags.provider, apiKey)
	if err != nil {
		perr := providers.AsProxyError(err)
		return cli.NewCommandError("check-key", fmt.Errorf("%s: %s", perr.Code, perr.Message))
	}

	out := cmd.OutOrStdout()
	if _, ok := formatter.(*cli.TextFormatter); ok {
		if err := formatter.FormatTo(out, describeResult(result)); err != nil {
			return err
		}
	} else if err := formatter.FormatTo(out, result); err != nil {
		return err
	}

	if !result.Valid {
		return cli.NewCommandError("check-key", fmt.Errorf("key not accepted by %s", result.Provider))
	}
	return nil
}

// newKeyChecker assembles the /validate path without an HTTP server. The
// checker never caches; every run asks the vendor. The reply is
// discarded, so no token estimator is wired.
func newKeyChecker(cfg *config.Config) (*keycheck.Checker, func(), error) {
	registry, err := providers.NewRegistry(cfg.ProviderOverrides())
	if err != nil {
		return nil, nil, err
	}
	adapters, err := providerfactory.NewAdapterSet(registry)
	if err != nil {
		return nil, nil, err
	}

	up := cfg.Upstream
	tc := providers.DefaultTransportConfig()
	tc.DialTimeout = up.ConnectTimeout
	tc.ResponseHeaderTimeout = up.ResponseHeaderTimeout
	transport := providers.NewTransport(tc)

	exec, err := proxy.NewExecutor(proxy.ExecutorConfig{
		Registry:  registry,
		Adapters:  adapters,
		Transport: transport,
		Timeout:   up.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	return keycheck.NewChecker(registry, exec, nil), transport.CloseIdleConnections, nil
}

func describeResult(r keycheck.Result) string {
	switch {
	case r.Valid && r.Throttled:
		return fmt.Sprintf("✓ %s key is valid (vendor is rate limiting it)", r.Provider)
	case r.Valid:
		return fmt.Sprintf("✓ %s key is valid", r.Provider)
	default:
		return fmt.Sprintf("✗ %s key is not valid: %s", r.Provider, r.Error)
	}
}

