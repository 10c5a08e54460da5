// Package docker provides the container execution backend for envmatrix.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Container labels identifying envmatrix-owned containers, so that
//     `envmatrix clean` can find leftovers from interrupted runs
//   - One throwaway container per environment: the sources are bind-mounted
//     at /workspace, dependencies are installed into a virtualenv inside
//     the container and every command runs through the exec API
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
