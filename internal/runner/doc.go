// Package runner executes resolved environments of a matrix.
//
// Execution is strictly sequential:
//   - environments run one at a time, in the resolved order
//   - within an environment, provisioning happens first, then commands run
//     in declared order, each to completion before the next starts
//   - a non-zero exit fails the environment and skips its remaining
//     commands (unless the command is prefixed with "-"); the next
//     environment still runs
//   - cancelling the context (SIGINT) aborts the whole matrix: the current
//     environment fails and the remaining ones are reported as skipped
//
// Isolation is delegated to a Backend. The venv package provides local
// virtualenvs, the docker package provides throwaway containers.
package runner
