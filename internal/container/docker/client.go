// Package docker runs database client sessions as ephemeral Docker containers.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/yairfalse/tagconnect/internal/dispatch"
	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

// managedLabel marks containers created by this package.
const managedLabel = "tagconnect.managed"

// dockerAPI is the subset of the Docker client used here.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *v1.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerResize(ctx context.Context, containerID string, options container.ResizeOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// Client implements dispatch.Runtime on a Docker daemon.
type Client struct {
	api dockerAPI
	in  io.Reader
	out io.Writer
}

var _ dispatch.Runtime = (*Client)(nil)

// NewClient connects to the daemon configured in the environment
// (DOCKER_HOST and friends) and wires the session to the process stdio.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{api: cli, in: os.Stdin, out: os.Stdout}, nil
}

// Close closes the Docker client.
func (c *Client) Close() error {
	return c.api.Close()
}

// Run creates, attaches and starts the container, then blocks until it exits.
// A non-zero exit status is reported as ErrSessionExit.
func (c *Client) Run(ctx context.Context, name string, inv dispatch.Invocation) error {
	id, err := c.create(ctx, name, inv)
	if err != nil {
		return err
	}

	resp, err := c.api.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("attach to %s: %w", name, err)
	}
	defer resp.Close()

	statusCh, errCh := c.api.ContainerWait(ctx, id, container.WaitConditionNextExit)

	if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	if restore := c.rawTerminal(ctx, id); restore != nil {
		defer restore()
	}

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		// Tty containers do not multiplex stdout and stderr.
		_, _ = io.Copy(c.out, resp.Reader)
	}()

	go func() {
		_, _ = io.Copy(resp.Conn, c.in)
		_ = resp.CloseWrite()
	}()

	select {
	case <-outputDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("wait for %s: %s", name, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("%w: exit status %d", apperrors.ErrSessionExit, status.StatusCode)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("wait for %s: %w", name, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// create creates the container, pulling the image once if it is missing.
func (c *Client) create(ctx context.Context, name string, inv dispatch.Invocation) (string, error) {
	config := &container.Config{
		Image:        inv.Image,
		Cmd:          inv.Args,
		Env:          inv.Env,
		Tty:          true,
		OpenStdin:    true,
		StdinOnce:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Labels:       map[string]string{managedLabel: "true"},
	}
	hostConfig := &container.HostConfig{AutoRemove: true}

	resp, err := c.api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if client.IsErrNotFound(err) {
		if err := c.pull(ctx, inv.Image); err != nil {
			return "", err
		}
		resp, err = c.api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	for _, w := range resp.Warnings {
		log.Warn().Str("session", name).Msg(w)
	}
	return resp.ID, nil
}

func (c *Client) pull(ctx context.Context, ref string) error {
	log.Info().Str("image", ref).Msg("pulling image")

	reader, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	return nil
}

// rawTerminal puts stdin in raw mode and sizes the container tty when stdin
// is a terminal. It returns the restore func, or nil.
func (c *Client) rawTerminal(ctx context.Context, id string) func() {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	fd := int(f.Fd())

	if width, height, err := term.GetSize(fd); err == nil {
		_ = c.api.ContainerResize(ctx, id, container.ResizeOptions{
			Height: uint(height),
			Width:  uint(width),
		})
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		log.Debug().Err(err).Msg("could not switch terminal to raw mode")
		return nil
	}
	return func() { _ = term.Restore(fd, state) }
}

// Remove force-removes the named container. A missing container is fine, and
// so is a conflict: the daemon is already auto-removing it.
func (c *Client) Remove(ctx context.Context, name string) error {
	err := c.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) && !errdefs.IsConflict(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
