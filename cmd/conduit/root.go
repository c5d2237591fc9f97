package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/conduit/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "conduit",
	Short: "Conduit - AI provider proxy",
	Long: `Conduit forwards chat completion requests from browser clients to AI
vendors (OpenAI, Anthropic, Google Gemini, DeepSeek, Groq, Together) using
the caller's own API key.

It provides:
  - One normalized request and response shape across vendors
  - Buffered (/proxy) and Server-Sent Events (/stream) completions
  - API key validation (/validate) without leaking the key
  - Per-caller rate limiting and optional daily quotas`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with cli.ExitCode on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (built-in defaults when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
