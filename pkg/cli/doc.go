/*
Package cli provides helpers shared by the conduit commands.

Errors:

ConfigError and CommandError carry the failing field or command. ExitCode
maps them to process exit codes so that scripts can tell a bad
configuration (2) from a runtime failure (1).

Output Formatting:

Commands that report a result accept --output text|json:

	formatter, err := cli.NewFormatter(cli.OutputFormat(flag))
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, result)

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
