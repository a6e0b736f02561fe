// Package docker is a read-only Docker SDK adapter. The composition
// system never creates or mutates containers through the SDK - all
// mutation goes through the runtime's compose CLI. This client exists
// for the inspection surface: service status and log streaming.
package docker

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/homelab-sh/homelab/internal/core/domain"
	"github.com/homelab-sh/homelab/internal/core/health"
)

// Compose runtime labels identifying project and service membership.
const (
	labelProject = "com.docker.compose.project"
	labelService = "com.docker.compose.service"
)

// =============================================================================
// Client
// =============================================================================

// Client wraps the Docker SDK for runtime inspection.
type Client struct {
	cli *client.Client
}

// NewClient creates a Docker client. An empty host uses the default
// from the environment.
func NewClient(host string) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewClient", "", "failed to create client", ErrConnectionFailed)
	}
	return &Client{cli: cli}, nil
}

// Ping checks whether the runtime daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// =============================================================================
// Status
// =============================================================================

// ProjectContainers returns the observed health of every container in
// the compose project, keyed by its compose service label.
func (c *Client) ProjectContainers(ctx context.Context, project string) ([]domain.ServiceHealth, error) {
	list, err := c.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelProject+"="+project),
		),
	})
	if err != nil {
		return nil, NewDockerError("ProjectContainers", project, err.Error(), ErrConnectionFailed)
	}

	var out []domain.ServiceHealth
	for _, summary := range list {
		name := ""
		if len(summary.Names) > 0 {
			name = strings.TrimPrefix(summary.Names[0], "/")
		}

		healthCheck := ""
		restarts := 0
		if inspect, err := c.cli.ContainerInspect(ctx, summary.ID); err == nil {
			restarts = inspect.RestartCount
			if inspect.State != nil && inspect.State.Health != nil {
				healthCheck = inspect.State.Health.Status
			}
		}

		out = append(out, domain.ServiceHealth{
			Service:   summary.Labels[labelService],
			Container: name,
			State:     summary.State,
			Health:    health.FromContainer(summary.State, healthCheck, restarts),
			Restarts:  restarts,
		})
	}
	return out, nil
}

// =============================================================================
// Logs
// =============================================================================

// LogOptions controls log streaming.
type LogOptions struct {
	Follow     bool
	Tail       string
	Timestamps bool
}

// StreamServiceLogs locates the named service's container within the
// project and copies its log stream to w until the stream ends or ctx
// is cancelled.
func (c *Client) StreamServiceLogs(ctx context.Context, project, service string, opts LogOptions, w io.Writer) error {
	list, err := c.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", labelProject+"="+project),
			filters.Arg("label", labelService+"="+service),
		),
	})
	if err != nil {
		return NewDockerError("StreamServiceLogs", service, err.Error(), ErrConnectionFailed)
	}
	if len(list) == 0 {
		return NewDockerError("StreamServiceLogs", service, "service has no container in project "+project, ErrServiceNotFound)
	}
	id := list[0].ID

	reader, err := c.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		return NewDockerError("StreamServiceLogs", service, err.Error(), err)
	}
	defer reader.Close()

	// Non-TTY containers multiplex stdout/stderr into one stream with
	// frame headers; demultiplex unless the container allocated a TTY.
	tty := false
	if inspect, err := c.cli.ContainerInspect(ctx, id); err == nil && inspect.Config != nil {
		tty = inspect.Config.Tty
	}

	if tty {
		_, err = io.Copy(w, reader)
	} else {
		_, err = stdcopy.StdCopy(w, w, reader)
	}
	if err != nil && ctx.Err() == nil {
		return NewDockerError("StreamServiceLogs", service, err.Error(), err)
	}
	return nil
}
