package docker

import (
	"fmt"
	"strings"
	"time"
)

// Label key constants define the Docker label keys put on every container
// envmatrix creates. They are the only record of which containers belong
// to envmatrix; there is no state file.
//
// All keys share the "envmatrix." prefix to namespace them and avoid
// collisions with labels set by other tools (Docker Compose, VS Code, etc.).
const (
	// LabelPrefix is the common prefix for all envmatrix labels.
	LabelPrefix = "envmatrix."

	// LabelManagedBy identifies containers managed by envmatrix.
	// This is the primary label used for filtering and discovery.
	// Key: "envmatrix.managed-by", Value: always "envmatrix".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelEnv stores the environment name (e.g., "pytest").
	LabelEnv = LabelPrefix + "env"

	// LabelRootDir stores the absolute host path mounted at /workspace.
	LabelRootDir = LabelPrefix + "root-dir"

	// LabelCreatedAt stores the RFC3339 timestamp of container creation.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "envmatrix"

// ContainerLabels describes the envmatrix metadata of one container.
type ContainerLabels struct {
	Env       string
	RootDir   string
	CreatedAt time.Time
}

// BuildLabels constructs the Docker label map for a container.
func BuildLabels(l ContainerLabels) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelEnv:       l.Env,
		LabelRootDir:   l.RootDir,
		// UTC keeps labels comparable regardless of the host timezone.
		LabelCreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ParseLabels is the inverse of BuildLabels. ListManagedContainers uses it
// to recover the environment and creation time of leftover containers.
//
// Missing required labels are all reported at once, so the error message
// lists everything that is wrong with the container.
func ParseLabels(labels map[string]string) (ContainerLabels, error) {
	requiredKeys := []string{LabelManagedBy, LabelEnv, LabelRootDir, LabelCreatedAt}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return ContainerLabels{}, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return ContainerLabels{}, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	createdAt, err := time.Parse(time.RFC3339, labels[LabelCreatedAt])
	if err != nil {
		return ContainerLabels{}, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
	}

	return ContainerLabels{
		Env:       labels[LabelEnv],
		RootDir:   labels[LabelRootDir],
		CreatedAt: createdAt,
	}, nil
}

// FilterLabel returns the "key=value" label filter matching every
// envmatrix-managed container, for use with filters.Arg("label", ...).
func FilterLabel() string {
	return LabelManagedBy + "=" + ManagedByValue
}

// ImageFor selects the container image for an environment.
//
// Priority order:
//  1. override (the --image flag), used as is
//  2. the environment's basepython ("python3.13" or "3.13" → "python:3.13",
//     "pypy3.10" → "pypy:3.10")
//  3. the requested interpreter version ("3.12" → "python:3.12")
//  4. "python:3"
func ImageFor(override, basePython, version string) string {
	if override != "" {
		return override
	}
	if basePython != "" {
		switch {
		case strings.HasPrefix(basePython, "pypy"):
			return "pypy:" + defaultTag(strings.TrimPrefix(basePython, "pypy"))
		case strings.HasPrefix(basePython, "python"):
			return "python:" + defaultTag(strings.TrimPrefix(basePython, "python"))
		default:
			return "python:" + basePython
		}
	}
	if version != "" {
		return "python:" + version
	}
	return "python:3"
}

func defaultTag(tag string) string {
	if tag == "" {
		return "3"
	}
	return tag
}
