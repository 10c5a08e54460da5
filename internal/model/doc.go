// Package model defines the domain types and value objects for the
// envmatrix CLI.
//
// This package contains pure data structures with no external dependencies.
// A Matrix is built once from a configuration file and never mutated
// afterwards; the result types (EnvResult, MatrixResult) are produced by
// the runner while environments execute.
//
// The package also defines exit codes (ExitCode), the CLIError type that
// carries them to the process boundary, and the two error families raised
// by matrix resolution: LookupError and ConfigError.
package model
