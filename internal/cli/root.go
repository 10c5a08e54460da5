// Package cli implements the cobra-based CLI commands for envmatrix.
//
// Each subcommand (run, list, resolve, ignores, lint-filter, coverage-scan,
// convert, clean) is defined in its own file within this package. This file
// defines the root command that serves as the parent for all subcommands,
// handles global flags and translates errors into exit codes.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/logging"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// It also switches the log handler to JSON.
	jsonOutput bool

	// verbose lowers the log level to Debug.
	verbose bool

	// configPath is an explicit configuration file; empty means discovery.
	configPath string

	// logger is configured in the root command's PersistentPreRun.
	logger = logging.Discard()
)

// configEnvVar provides the default for --config.
const configEnvVar = "ENVMATRIX_CONFIG"

// version, commit, and date are set at build time via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "envmatrix",
		Short: "Run a tox-style environment matrix",
		Long: `envmatrix reads a tox-style environment matrix (tox.ini, envmatrix.yaml
or envmatrix.jsonc), resolves which environments apply to an interpreter
version, provisions each one in isolation and runs its commands in order.

A failing environment never stops the others; the exit code reports the
aggregate outcome.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger = logging.New(cmd.ErrOrStderr(), logging.Options{Verbose: verbose, JSON: jsonOutput})
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(configEnvVar),
		"Configuration file (default: discovered from the current directory, $"+configEnvVar+")")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewListCommand())
	rootCmd.AddCommand(NewResolveCommand())
	rootCmd.AddCommand(NewIgnoresCommand())
	rootCmd.AddCommand(NewLintFilterCommand())
	rootCmd.AddCommand(NewCoverageScanCommand())
	rootCmd.AddCommand(NewConvertCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code derived from its
// error. This is the main entry point called from main.go.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(int(ExitCodeFor(err)))
	}
}

// ExitCodeFor maps an error to the process exit code.
//
// CLIError types carry their own exit codes. Lookup and configuration
// errors are recognized anywhere in the wrap chain; everything else is a
// general error.
func ExitCodeFor(err error) model.ExitCode {
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}

	var lookupErr *model.LookupError
	if errors.As(err, &lookupErr) {
		if lookupErr.Kind == model.LookupVersion {
			return model.ExitUnknownVersion
		}
		return model.ExitUnknownEnv
	}

	if errors.Is(err, model.ErrConfig) {
		return model.ExitConfigError
	}
	return model.ExitGeneralError
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors go to stderr,
// even in JSON mode, because stdout is reserved for command output.
func printError(w io.Writer, err error) {
	message, detail := err.Error(), ""
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		message = cliErr.Message
		if cliErr.Err != nil {
			detail = cliErr.Err.Error()
		}
	}

	if jsonOutput {
		errObj := map[string]interface{}{
			"message": message,
			"code":    int(ExitCodeFor(err)),
		}
		if detail != "" {
			errObj["detail"] = detail
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errObj}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if detail != "" {
		fmt.Fprintf(w, "Error: %s: %s\n", message, detail)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// VerboseLog emits a debug-level message, visible only with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// Logger returns the configured logger for packages that take one.
func Logger() *slog.Logger {
	return logger
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
