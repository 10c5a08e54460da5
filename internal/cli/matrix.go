package cli

import (
	"os"

	"github.com/shinji-kodama/envmatrix/internal/config"
	"github.com/shinji-kodama/envmatrix/internal/model"
	"github.com/shinji-kodama/envmatrix/internal/worktree"
)

// findConfigPath returns --config if set, otherwise discovers a
// configuration file from the current directory up to the Git repository
// root (or the filesystem root outside a repository).
func findConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError, "failed to get current directory", err)
	}

	stopAt := ""
	if root, err := worktree.NewManager().GetRepoRoot(cwd); err == nil {
		stopAt = root
	}
	return config.FindConfig(cwd, stopAt)
}

// loadMatrix finds and loads the matrix for the current invocation.
func loadMatrix() (*model.Matrix, error) {
	path, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	VerboseLog("Loading configuration from %s", path)
	return config.LoadMatrix(path)
}
