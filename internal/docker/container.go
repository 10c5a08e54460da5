// container.go implements discovery and cleanup of envmatrix containers.
//
// Containers are normally removed when their environment finishes. A
// killed envmatrix process can leave them behind; `envmatrix clean` uses
// the functions here to find them by label and remove them.
package docker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// ContainerInfo describes one envmatrix-managed container.
type ContainerInfo struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	State     string            `json:"state"`
	Env       string            `json:"env"`
	CreatedAt time.Time         `json:"createdAt"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// ListManagedContainers queries the Docker daemon for all containers with
// the managed-by label, including stopped ones. When rootDir is non-empty
// only containers for that source tree are returned. Containers whose
// labels do not parse are left alone.
func ListManagedContainers(ctx context.Context, cli *Client, rootDir string) ([]ContainerInfo, error) {
	// Docker performs the label filtering server-side.
	args := filters.NewArgs(filters.Arg("label", FilterLabel()))
	if rootDir != "" {
		args.Add("label", LabelRootDir+"="+rootDir)
	}

	containers, err := cli.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: args,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		info, err := containerToInfo(c)
		if err != nil {
			continue
		}
		result = append(result, info)
	}
	return result, nil
}

// containerToInfo converts a Docker API container summary. Docker returns
// names with a leading "/", which is stripped for display.
func containerToInfo(c container.Summary) (ContainerInfo, error) {
	labels, err := ParseLabels(c.Labels)
	if err != nil {
		return ContainerInfo{}, err
	}
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return ContainerInfo{
		ID:        c.ID,
		Name:      name,
		State:     string(c.State),
		Env:       labels.Env,
		CreatedAt: labels.CreatedAt,
		Labels:    c.Labels,
	}, nil
}

// RemoveContainer force-removes a container by its ID.
func RemoveContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.api.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}
