// convert.go implements the "envmatrix convert" command,
// which rewrites the loaded matrix (typically a tox.ini) as envmatrix.yaml.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/config"
)

// NewConvertCommand creates the "convert" cobra command.
func NewConvertCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Write the matrix as envmatrix.yaml",
		Long: `Load the matrix (from any supported format) and write it as YAML.
Cross-section references and [testenv] inheritance are expanded.

Examples:
  envmatrix convert                       # print to stdout
  envmatrix convert -o envmatrix.yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			data, err := config.MarshalYAML(m)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := config.WriteFile(output, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}
