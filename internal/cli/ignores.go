// ignores.go implements the "envmatrix ignores" and
// "envmatrix lint-filter" commands, both driven by the [flake8]
// per-file-ignores rules of the matrix.

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/lint"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// NewIgnoresCommand creates the "ignores" cobra command.
func NewIgnoresCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ignores <path>...",
		Short: "Show the lint codes suppressed for files",
		Long: `Show which lint rule codes the per-file-ignores rules suppress for each
path. Paths are matched relative to the matrix root.

Examples:
  envmatrix ignores tests/google_calendar_tests/mock_services/foo.py`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			matcher, err := lint.NewMatcher(m.Lint, m.RootDir)
			if err != nil {
				return model.WrapCLIError(model.ExitConfigError, "invalid per-file-ignores", err)
			}

			type entry struct {
				Path  string   `json:"path"`
				Codes []string `json:"codes"`
			}
			entries := make([]entry, 0, len(args))
			for _, p := range args {
				entries = append(entries, entry{Path: p, Codes: append([]string{}, matcher.Suppressed(p)...)})
			}

			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"files": entries})
			}
			for _, e := range entries {
				codes := "-"
				if len(e.Codes) > 0 {
					codes = strings.Join(e.Codes, ",")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", e.Path, codes)
			}
			return nil
		},
	}
}

// NewLintFilterCommand creates the "lint-filter" cobra command.
func NewLintFilterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lint-filter",
		Short: "Drop suppressed violations from a flake8 report",
		Long: `Read a flake8 report (path:row:col: CODE message) from stdin and write
it to stdout without the violations suppressed by per-file-ignores.
Exits with code 1 if any violation remains.

Examples:
  flake8 gcsa tests | envmatrix lint-filter`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			matcher, err := lint.NewMatcher(m.Lint, m.RootDir)
			if err != nil {
				return model.WrapCLIError(model.ExitConfigError, "invalid per-file-ignores", err)
			}

			stats, err := matcher.Filter(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			VerboseLog("Kept %d violations, suppressed %d", stats.Kept, stats.Suppressed)
			if stats.Kept > 0 {
				return model.NewCLIError(model.ExitGeneralError, fmt.Sprintf("%d lint violations", stats.Kept))
			}
			return nil
		},
	}
}
