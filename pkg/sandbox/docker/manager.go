// Package docker runs session shell commands inside a per-session
// container with the project root bind-mounted at /workspace.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/chisel-dev/chisel/pkg/sandbox"
)

const (
	DefaultImage = "chisel-sandbox:latest"
	workspaceDir = "/workspace"
)

// Manager implements sandbox.Manager using Docker containers. A
// session's container is created lazily on first Exec and reused until
// Stop.
type Manager struct {
	cli         *client.Client
	image       string
	projectRoot string
}

var _ sandbox.Manager = (*Manager)(nil)

// New creates a Manager. An empty image selects DefaultImage.
func New(image, projectRoot string) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if image == "" {
		image = DefaultImage
	}
	return &Manager{cli: cli, image: image, projectRoot: projectRoot}, nil
}

func (m *Manager) Close() error {
	return m.cli.Close()
}

func (m *Manager) containerName(sessionID string) string {
	return fmt.Sprintf("chisel-%s", sessionID)
}

func (m *Manager) Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*sandbox.Result, error) {
	containerID, err := m.ensureRunning(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	exec, err := m.cli.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          []string{"/bin/sh", "-lc", command},
		WorkingDir:   workspaceDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}

	attach, err := m.cli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- err
	}()

	select {
	case err := <-copyDone:
		if err != nil {
			return nil, fmt.Errorf("reading exec output: %w", err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("inspecting exec: %w", err)
	}

	return &sandbox.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	return m.cli.ContainerRemove(ctx, m.containerName(sessionID), types.ContainerRemoveOptions{
		Force: true,
	})
}

// ensureRunning checks if the session container is running, starts it
// if not, and returns its ID.
func (m *Manager) ensureRunning(ctx context.Context, sessionID string) (string, error) {
	name := m.containerName(sessionID)

	c, err := m.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return m.createAndStart(ctx, sessionID)
		}
		return "", fmt.Errorf("inspecting container: %w", err)
	}

	if c.State.Running {
		return c.ID, nil
	}

	if err := m.cli.ContainerStart(ctx, name, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	return c.ID, nil
}

func (m *Manager) createAndStart(ctx context.Context, sessionID string) (string, error) {
	// The image is expected to exist locally.
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, m.image); err != nil {
		return "", fmt.Errorf("sandbox image %q not found, run 'make build-sandbox': %w", m.image, err)
	}

	cfg := &container.Config{
		Image:      m.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: workspaceDir,
	}
	hostCfg := &container.HostConfig{
		Binds: []string{m.projectRoot + ":" + workspaceDir},
	}

	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName(sessionID))
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if err := m.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	return resp.ID, nil
}
