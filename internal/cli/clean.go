// clean.go implements the "envmatrix clean" command.
//
// clean removes what a run can leave behind:
//   - local virtualenvs under <root>/.envmatrix (only with --envs)
//   - snapshot worktrees of interrupted --isolated runs
//   - containers of interrupted docker runs (skipped if Docker is not running)

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/envmatrix/internal/docker"
	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/venv"
	"github.com/shinji-kodama/envmatrix/internal/worktree"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	envs   bool // --envs: also remove local virtualenvs
	dryRun bool // --dry-run: only print what would be removed
}

// cleanResult is the JSON output of the clean command.
type cleanResult struct {
	Virtualenvs []string `json:"virtualenvs"`
	Snapshots   []string `json:"snapshots"`
	Containers  []string `json:"containers"`
	DryRun      bool     `json:"dryRun"`
}

// NewCleanCommand creates the "clean" cobra command.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover snapshots, containers and environments",
		Long: `Remove snapshot worktrees and containers left behind by interrupted runs.
With --envs, also remove the local virtualenvs in .envmatrix/.

Examples:
  envmatrix clean
  envmatrix clean --envs --dry-run`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.envs, "envs", false, "Also remove local virtualenvs")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Only print what would be removed")
	return cmd
}

func runClean(ctx context.Context, w io.Writer, flags *cleanFlags) error {
	m, err := loadMatrix()
	if err != nil {
		return err
	}
	res := cleanResult{
		Virtualenvs: []string{},
		Snapshots:   []string{},
		Containers:  []string{},
		DryRun:      flags.dryRun,
	}

	// Step 1: Local virtualenvs.
	if flags.envs {
		dir := venv.New(m.RootDir, venv.Options{}).BaseDir()
		if _, err := os.Stat(dir); err == nil {
			res.Virtualenvs = append(res.Virtualenvs, dir)
			if !flags.dryRun {
				if err := os.RemoveAll(dir); err != nil {
					return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to remove %s", dir), err)
				}
			}
		}
	}

	// Step 2: Snapshot worktrees; only meaningful inside a repository.
	wm := worktree.NewManager()
	if root, err := wm.GetRepoRoot(m.RootDir); err == nil {
		// Snapshots whose directory was already deleted only need pruning.
		if !flags.dryRun {
			if err := wm.Prune(root); err != nil {
				return err
			}
		}
		stale, err := wm.StaleSnapshots(root)
		if err != nil {
			return err
		}
		for _, wt := range stale {
			res.Snapshots = append(res.Snapshots, wt.Path)
			if flags.dryRun {
				continue
			}
			if err := wm.RemoveSnapshot(&worktree.Snapshot{RepoRoot: root, Path: wt.Path, Commit: wt.HEAD}); err != nil {
				return err
			}
		}
	} else {
		VerboseLog("Not inside a Git repository, skipping snapshots")
	}

	// Step 3: Containers. A missing daemon just means there is nothing to do.
	if err := cleanContainers(ctx, m.RootDir, flags.dryRun, &res); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(w, res)
	}
	printCleanText(w, res)
	return nil
}

func cleanContainers(ctx context.Context, rootDir string, dryRun bool, res *cleanResult) error {
	cli, err := docker.NewClient()
	if err != nil {
		VerboseLog("Docker not available, skipping containers: %v", err)
		return nil
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		VerboseLog("Docker not available, skipping containers: %v", err)
		return nil
	}

	containers, err := docker.ListManagedContainers(ctx, cli, rootDir)
	if err != nil {
		return err
	}
	for _, c := range containers {
		res.Containers = append(res.Containers, describeContainer(c))
		if dryRun {
			continue
		}
		if err := docker.RemoveContainer(ctx, cli, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// describeContainer names a container with its environment and age.
func describeContainer(c docker.ContainerInfo) string {
	return fmt.Sprintf("%s (env %s, created %s)", c.Name, c.Env, c.CreatedAt.Local().Format(time.RFC3339))
}

func printCleanText(w io.Writer, res cleanResult) {
	verb := "Removed"
	if res.DryRun {
		verb = "Would remove"
	}
	total := 0
	for _, group := range []struct {
		kind  string
		items []string
	}{
		{"virtualenvs", res.Virtualenvs},
		{"snapshot", res.Snapshots},
		{"container", res.Containers},
	} {
		for _, item := range group.items {
			fmt.Fprintf(w, "%s %s %s\n", verb, group.kind, item)
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "Nothing to clean.")
	}
}
