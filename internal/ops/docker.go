// Package ops provides operational actions an administrator can trigger
// against a peer from outside FLE itself — restarting a stuck peer's
// container is deliberately an operator action, not something the
// election loop does on its own (the algorithm has no self-healing
// non-goal to violate).
//
// Grounded on
// redis_supervisor_service/internal/clients/docker_client.go.
package ops

import (
	"context"
	"fmt"
	"time"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerRestarter restarts a named Docker container.
type ContainerRestarter struct {
	cli *client.Client
}

// NewContainerRestarter creates a client against the Docker daemon
// resolved from the environment (DOCKER_HOST etc), optionally overridden
// by host.
func NewContainerRestarter(host string) (*ContainerRestarter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("ops: create docker client: %w", err)
	}
	return &ContainerRestarter{cli: cli}, nil
}

// Restart restarts the named container, allowing it up to 10s to stop
// gracefully before it is killed.
func (c *ContainerRestarter) Restart(containerName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	timeout := 10
	opts := containertypes.StopOptions{Timeout: &timeout}

	if err := c.cli.ContainerRestart(ctx, containerName, opts); err != nil {
		return fmt.Errorf("ops: restart container %s: %w", containerName, err)
	}
	return nil
}

// Close releases the underlying client connection.
func (c *ContainerRestarter) Close() error {
	return c.cli.Close()
}
