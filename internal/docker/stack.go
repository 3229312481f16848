// stack.go implements compose stack lookups against the Docker engine.
//
// The snapshot command records which image triggered an upgrade; when the
// user does not pass it explicitly, the running containers of the stack are
// consulted. Docker Compose stamps every container it creates with
// "com.docker.compose.project" and "com.docker.compose.service" labels,
// which is all we need to attribute containers to a stack.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/panzer1119/homelabctl/internal/model"
)

// composeProjectLabel is the label Docker Compose sets to the project name.
const composeProjectLabel = "com.docker.compose.project"

// composeServiceLabel is the label Docker Compose sets to the service name.
const composeServiceLabel = "com.docker.compose.service"

// StackContainer describes one container belonging to a compose stack.
type StackContainer struct {
	// ServiceName is the compose service the container belongs to.
	ServiceName string `json:"serviceName"`

	// ContainerName is the Docker container name (leading "/" stripped).
	ContainerName string `json:"containerName"`

	// Image is the image reference the container was created from.
	Image string `json:"image"`

	// State is the short container state ("running", "exited", ...).
	State string `json:"state"`
}

// ListStackContainers returns all containers (including stopped ones) of
// the given compose stack, as identified by the compose project label.
func ListStackContainers(ctx context.Context, cli *Client, stack string) ([]StackContainer, error) {
	filterArgs := filters.NewArgs(
		filters.Arg("label", composeProjectLabel+"="+stack),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		// Include stopped containers: an upgrade snapshot is typically
		// taken while the stack is down.
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to list containers of stack %q", stack),
			err,
		)
	}

	result := make([]StackContainer, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			// The API returns names with a leading "/" artifact.
			name = c.Names[0]
			if len(name) > 0 && name[0] == '/' {
				name = name[1:]
			}
		}
		result = append(result, StackContainer{
			ServiceName:   c.Labels[composeServiceLabel],
			ContainerName: name,
			Image:         c.Image,
			State:         c.State,
		})
	}
	return result, nil
}
