// resolve.go implements the "envmatrix resolve" command.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/resolver"
)

// NewResolveCommand creates the "resolve" cobra command, which prints the
// environments bound to an interpreter version without running anything.
func NewResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <version>",
		Short: "Print the environments bound to an interpreter version",
		Long: `Print the environments that "run --python <version>" would run.

A patch version ("3.13.2") falls back to its major.minor binding.
An unbound version exits with code 4.

Examples:
  envmatrix resolve 3.13
  envmatrix resolve 3.12.4 --json`,

		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			envs, err := resolver.Resolve(m, args[0])
			if err != nil {
				return err
			}

			names := resolver.Names(envs)
			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"version":      args[0],
					"environments": names,
				})
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
