// list.go implements the "envmatrix list" command.
//
// The list command displays every declared environment with its
// dependency and command counts, marking the ones in the default envlist,
// followed by the interpreter version mapping.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// NewListCommand creates the "list" cobra command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments and the version mapping",
		Long: `List all declared environments and the interpreter version mapping.

Environments in the default envlist are marked with "*".

Examples:
  envmatrix list
  envmatrix list --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMatrix()
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				return printJSON(cmd.OutOrStdout(), toListJSON(m))
			}
			printListText(cmd.OutOrStdout(), m)
			return nil
		},
	}
}

// listEnvJSON is the JSON output structure for a single environment
// in the list command.
type listEnvJSON struct {
	Name        string   `json:"name"`
	Default     bool     `json:"default"`
	Description string   `json:"description,omitempty"`
	Deps        []string `json:"deps"`
	Commands    []string `json:"commands"`
}

// listJSON is the top-level JSON document of the list command.
type listJSON struct {
	Source       string                 `json:"source"`
	Environments []listEnvJSON          `json:"environments"`
	Versions     []model.VersionBinding `json:"versions"`
}

func toListJSON(m *model.Matrix) listJSON {
	out := listJSON{
		Source: m.Source,
		// Empty slices instead of nil so JSON shows [] instead of null.
		Environments: make([]listEnvJSON, 0, len(m.Environments)),
		Versions:     make([]model.VersionBinding, 0, len(m.Versions)),
	}
	for _, env := range m.Environments {
		out.Environments = append(out.Environments, listEnvJSON{
			Name:        env.Name,
			Default:     m.IsDefault(env.Name),
			Description: env.Description,
			Deps:        append([]string{}, env.DepSpecs()...),
			Commands:    append([]string{}, env.Commands...),
		})
	}
	out.Versions = append(out.Versions, m.Versions...)
	return out
}

// printListText outputs the environments as a text table:
//
//	  NAME       DEPS  COMMANDS  DESCRIPTION
//	* pytest     2     1
//	  coverage   3     1         coverage report
//
//	VERSION  ENVIRONMENTS
//	3.13     pytest, flake8, sphinx, mypy
func printListText(w io.Writer, m *model.Matrix) {
	if len(m.Environments) == 0 {
		fmt.Fprintln(w, "No environments declared.")
		return
	}

	width := len("NAME")
	for _, env := range m.Environments {
		width = max(width, len(env.Name))
	}

	fmt.Fprintf(w, "  %-*s  %-4s  %-8s  %s\n", width, "NAME", "DEPS", "COMMANDS", "DESCRIPTION")
	for _, env := range m.Environments {
		marker := " "
		if m.IsDefault(env.Name) {
			marker = "*"
		}
		line := fmt.Sprintf("%s %-*s  %-4d  %-8d  %s", marker, width, env.Name, len(env.Deps), len(env.Commands), env.Description)
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	if len(m.Versions) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-8s %s\n", "VERSION", "ENVIRONMENTS")
	for _, b := range m.Versions {
		fmt.Fprintf(w, "%-8s %s\n", b.Version, strings.Join(b.Envs, ", "))
	}
}
