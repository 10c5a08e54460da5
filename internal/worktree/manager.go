// Package worktree provides Git worktree operations for envmatrix.
//
// `envmatrix run --isolated` runs the matrix against a detached worktree
// of HEAD instead of the live checkout, so build artifacts, caches and
// virtualenvs created by the run never touch the developer's tree, and an
// edit made while a long run is in progress does not change what is tested.
//
// All Git operations shell out to the git binary (via os/exec). Worktree
// support in Go Git libraries is limited, and using the CLI gives exactly
// the behavior the user sees in their terminal. Requires Git >= 2.17.
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// SnapshotPrefix is the directory name prefix of every snapshot worktree.
// `envmatrix clean` uses it to recognize stale snapshots.
const SnapshotPrefix = "envmatrix-snapshot-"

// WorktreeInfo holds metadata about a single Git worktree entry
// as parsed from `git worktree list --porcelain` output.
//
// Example porcelain output for a single worktree block:
//
//	worktree /tmp/envmatrix-snapshot-123
//	HEAD abc123def456
//	detached
type WorktreeInfo struct {
	// Path is the absolute filesystem path to the worktree directory.
	Path string

	// Branch is the full branch reference (e.g., "refs/heads/main").
	// Empty if the worktree is in a detached HEAD state.
	Branch string

	// HEAD is the commit SHA that the worktree currently points to.
	HEAD string

	// IsBare indicates whether this worktree entry represents a bare repository.
	IsBare bool

	// Detached is true for worktrees with a detached HEAD, which is how
	// every snapshot is created.
	Detached bool
}

// IsSnapshot reports whether this worktree was created by CreateSnapshot.
func (w WorktreeInfo) IsSnapshot() bool {
	return w.Detached && strings.HasPrefix(filepath.Base(w.Path), SnapshotPrefix)
}

// Snapshot is a detached worktree of a commit.
type Snapshot struct {
	// RepoRoot is the top-level directory of the repository the snapshot
	// was taken from.
	RepoRoot string

	// Path is the snapshot worktree directory.
	Path string

	// Commit is the SHA checked out in the snapshot.
	Commit string
}

// Rebase maps a path inside RepoRoot to the same location inside the
// snapshot. It is used to find the configuration file and root directory
// of the matrix in the snapshot.
func (s *Snapshot) Rebase(path string) (string, error) {
	rel, err := filepath.Rel(s.RepoRoot, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside repository %s", path, s.RepoRoot)
	}
	return filepath.Join(s.Path, rel), nil
}

// Manager provides Git worktree operations by invoking the git CLI.
//
// It is stateless; all methods receive the repository path as a parameter.
type Manager struct{}

// NewManager creates a new worktree Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// CreateSnapshot adds a detached worktree of HEAD in a fresh temporary
// directory. Uncommitted changes are not part of the snapshot.
func (m *Manager) CreateSnapshot(repoPath string) (*Snapshot, error) {
	root, err := m.GetRepoRoot(repoPath)
	if err != nil {
		return nil, err
	}
	commit, err := m.HeadCommit(root)
	if err != nil {
		return nil, err
	}

	// git accepts an existing directory as long as it is empty.
	dir, err := os.MkdirTemp("", SnapshotPrefix+"*")
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGitError, "failed to create snapshot directory", err)
	}

	if _, err := runGit(root, "worktree", "add", "--detach", dir, commit); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &Snapshot{RepoRoot: root, Path: dir, Commit: commit}, nil
}

// RemoveSnapshot removes the snapshot worktree and its directory. Files
// created by the run make the worktree dirty, so removal is forced.
func (m *Manager) RemoveSnapshot(s *Snapshot) error {
	if err := m.Remove(s.RepoRoot, s.Path, true); err != nil {
		return err
	}
	// git leaves the directory behind when it contains ignored files.
	if err := os.RemoveAll(s.Path); err != nil {
		return model.WrapCLIError(model.ExitGitError, fmt.Sprintf("failed to remove %s", s.Path), err)
	}
	return nil
}

// StaleSnapshots returns the snapshot worktrees registered in the
// repository, typically left behind by a killed run.
func (m *Manager) StaleSnapshots(repoPath string) ([]WorktreeInfo, error) {
	all, err := m.List(repoPath)
	if err != nil {
		return nil, err
	}
	var out []WorktreeInfo
	for _, wt := range all {
		if wt.IsSnapshot() {
			out = append(out, wt)
		}
	}
	return out, nil
}

// List returns information about all worktrees associated with the given repository.
//
// It runs `git worktree list --porcelain` which produces machine-parseable output.
// Each worktree block is separated by a blank line. Within a block, each line
// is a space-separated key-value pair:
//
//	worktree /path/to/dir
//	HEAD abc123
//	branch refs/heads/main
//
// Special markers like "bare" or "detached" appear as standalone keywords.
func (m *Manager) List(repoPath string) ([]WorktreeInfo, error) {
	output, err := runGit(repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	return parsePorcelainOutput(output), nil
}

// Remove deletes a Git worktree at the specified path.
//
// If force is true, the --force flag is added to allow removal of
// worktrees with untracked files or uncommitted changes.
func (m *Manager) Remove(repoPath, worktreePath string, force bool) error {
	args := []string{"worktree", "remove", worktreePath}
	if force {
		args = []string{"worktree", "remove", "--force", worktreePath}
	}

	_, err := runGit(repoPath, args...)
	return err
}

// Prune removes administrative data of worktrees whose directory no
// longer exists (e.g., a snapshot deleted by a tmp cleaner).
func (m *Manager) Prune(repoPath string) error {
	_, err := runGit(repoPath, "worktree", "prune")
	return err
}

// IsWorktree checks whether the given path is a Git worktree (as opposed to
// a main repository working directory).
//
// Git worktrees are identified by having a .git FILE (not directory) that
// contains a "gitdir:" pointer to the main repository's .git/worktrees/<name>
// directory. In contrast, the main working directory has a .git DIRECTORY.
func (m *Manager) IsWorktree(path string) bool {
	gitPath := filepath.Join(path, ".git")

	// Lstat: .git must be a regular file, not a symlink to a directory.
	info, err := os.Lstat(gitPath)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return false
	}

	return strings.HasPrefix(string(content), "gitdir:")
}

// GetRepoRoot returns the absolute path to the top-level directory of the
// Git repository containing the given path.
//
// This uses `git rev-parse --show-toplevel` which works correctly for both
// the main repository and worktrees: it returns the root of whichever
// working tree contains the specified path.
func (m *Manager) GetRepoRoot(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// HeadCommit returns the full SHA of HEAD.
func (m *Manager) HeadCommit(path string) (string, error) {
	output, err := runGit(path, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// runGit executes a git command with the given arguments in the specified directory.
//
// It captures both stdout and stderr. On success (exit code 0), it returns
// the stdout output. On failure, it returns a model.CLIError with ExitGitError
// code, including the stderr output in the error message for debugging.
//
// The repoPath parameter is passed to git via the -C flag, which causes git
// to change to that directory before doing anything else.
func runGit(repoPath string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)

	// #nosec G204: args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitGitError, message, err)
	}

	return stdout.String(), nil
}

// parsePorcelainOutput parses the output of `git worktree list --porcelain`
// into a slice of WorktreeInfo structs.
//
// Example input:
//
//	worktree /path/to/main
//	HEAD abc123
//	branch refs/heads/main
//
//	worktree /tmp/envmatrix-snapshot-42
//	HEAD def456
//	detached
//	<empty line at end>
func parsePorcelainOutput(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo

	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")

	var current *WorktreeInfo
	for _, line := range lines {
		// A blank line signals the end of a worktree block.
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
			continue
		}

		key, value, _ := strings.Cut(line, " ")

		switch key {
		case "worktree":
			current = &WorktreeInfo{Path: value}
		case "HEAD":
			if current != nil {
				current.HEAD = value
			}
		case "branch":
			if current != nil {
				current.Branch = value
			}
		case "bare":
			if current != nil {
				current.IsBare = true
			}
		case "detached":
			if current != nil {
				current.Detached = true
			}
		}
	}

	// Handle the last block if the output doesn't end with a blank line.
	if current != nil {
		worktrees = append(worktrees, *current)
	}

	return worktrees
}
