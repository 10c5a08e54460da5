// coverage.go implements the "envmatrix coverage-scan" command.

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/coverage"
	"github.com/shinji-kodama/envmatrix/internal/model"
)

// NewCoverageScanCommand creates the "coverage-scan" cobra command.
func NewCoverageScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage-scan <path>...",
		Short: "Show how coverage exclusion rules treat source files",
		Long: `Apply the [coverage:report] rules to source files: report omitted files,
and for the others the number of counted, excluded and blank lines.

Examples:
  envmatrix coverage-scan gcsa/event.py gcsa/__init__.py`,

		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			excluder, err := coverage.NewExcluder(m.Coverage, m.RootDir)
			if err != nil {
				return model.WrapCLIError(model.ExitConfigError, "invalid coverage omit globs", err)
			}

			results := make([]coverage.Accounting, 0, len(args))
			for _, p := range args {
				acc, err := scanFile(excluder, p)
				if err != nil {
					return err
				}
				results = append(results, acc)
			}

			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{"files": results})
			}
			for _, acc := range results {
				if acc.Omitted {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: omitted\n", acc.Path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d counted, %d excluded, %d blank (%d lines)\n",
					acc.Path, acc.Counted, acc.Excluded, acc.Blank, acc.Lines)
			}
			return nil
		},
	}
}

// scanFile accounts one file. Omitted files are not opened.
func scanFile(e *coverage.Excluder, path string) (coverage.Accounting, error) {
	if e.IsFileOmitted(path) {
		return coverage.Accounting{Path: path, Omitted: true}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return coverage.Accounting{}, model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("cannot read %s", path), err)
	}
	defer f.Close()
	return e.Account(path, f)
}
