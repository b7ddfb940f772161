// Package container implements backend.Backend over Docker containers,
// using the real Docker SDK client (github.com/docker/docker/client) donated
// by kdlbs-kandev's docker-based agent backend. Each container runs tmux
// internally; commands reach it via `docker exec`, mirroring the way the
// teacher's remote backends bridge into a local multiplexer pane — here the
// pane lives inside the container instead of on a remote host.
package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/tmux"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// ManagedLabel is the Docker label every container this daemon creates
// carries (spec.md §6: "a user-option on the session or a container/pod
// label").
const ManagedLabel = "tmux-agents.managed"

// managedContainer is the narrow projection of a listed container this
// package actually needs, decoupled from whatever type the Docker SDK's
// ContainerList returns.
type managedContainer struct {
	ID          string
	SessionName string
}

// dockerAPI is the narrow slice of the Docker Engine API this backend
// drives, kept separate from *client.Client so tests can supply a fake
// instead of talking to a real daemon (SPEC_FULL.md §A.4/§C.3: "idempotent
// double/fake backend implementations ... used by tests instead of hitting
// real tmux/docker/kubectl/ssh").
type dockerAPI interface {
	createContainer(ctx context.Context, spec backend.Spec) (containerID string, err error)
	startContainer(ctx context.Context, id string) error
	stopContainer(ctx context.Context, id string) error
	removeContainer(ctx context.Context, id string) error
	inspectRunning(ctx context.Context, id string) (running bool, found bool, err error)
	listManaged(ctx context.Context) ([]managedContainer, error)
	ping(ctx context.Context) error
	exec(ctx context.Context, containerID string, cmd []string) error
	execOutput(ctx context.Context, containerID string, cmd []string) (string, error)
}

// dockerClient adapts the real Docker SDK client to dockerAPI.
type dockerClient struct{ cli *client.Client }

func (d dockerClient) createContainer(ctx context.Context, spec backend.Spec) (string, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"tmux", "new-session", "-d", "-s", "agent"},
		Env:        env,
		WorkingDir: spec.WorkingDir,
		Labels: map[string]string{
			ManagedLabel:       "true",
			"tmux-agents.name": spec.SessionName,
		},
		Tty: true,
	}, &container.HostConfig{}, nil, nil, spec.SessionName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", fmt.Errorf("%w: %v", backend.ErrImageMissing, err)
		}
		return "", fmt.Errorf("creating container: %w", err)
	}
	return resp.ID, nil
}

func (d dockerClient) startContainer(ctx context.Context, id string) error {
	return d.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (d dockerClient) stopContainer(ctx context.Context, id string) error {
	timeout := 5
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("stopping container: %w", err)
	}
	return nil
}

func (d dockerClient) removeContainer(ctx context.Context, id string) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container: %w", err)
	}
	return nil
}

func (d dockerClient) inspectRunning(ctx context.Context, id string) (bool, bool, error) {
	inspect, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("inspecting container: %w", err)
	}
	return inspect.State != nil && inspect.State.Running, true, nil
}

func (d dockerClient) listManaged(ctx context.Context) ([]managedContainer, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	var out []managedContainer
	for _, c := range containers {
		if c.Labels[ManagedLabel] != "true" {
			continue
		}
		out = append(out, managedContainer{ID: c.ID, SessionName: c.Labels["tmux-agents.name"]})
	}
	return out, nil
}

func (d dockerClient) ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}
	return nil
}

// exec runs a command inside the container and validates its exit code,
// analogous to the teacher's K8sConnection running commands via `kubectl
// exec`.
func (d dockerClient) exec(ctx context.Context, containerID string, cmd []string) error {
	out, exitCode, err := d.execRaw(ctx, containerID, cmd)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("exec %v: exit %d: %s", cmd, exitCode, strings.TrimSpace(out))
	}
	return nil
}

func (d dockerClient) execOutput(ctx context.Context, containerID string, cmd []string) (string, error) {
	out, _, err := d.execRaw(ctx, containerID, cmd)
	return out, err
}

func (d dockerClient) execRaw(ctx context.Context, containerID string, cmd []string) (string, int, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", 0, fmt.Errorf("creating exec: %w", err)
	}
	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", 0, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, attach.Reader); err != nil && err != io.EOF {
		return "", 0, fmt.Errorf("reading exec output: %w", err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", 0, fmt.Errorf("inspecting exec: %w", err)
	}
	return out.String(), inspect.ExitCode, nil
}

// Backend implements backend.Backend over the Docker Engine API.
type Backend struct {
	api    dockerAPI
	warmup time.Duration
}

// New builds a container backend from a pre-configured Docker client.
func New(cli *client.Client, warmup time.Duration) *Backend {
	return &Backend{api: dockerClient{cli: cli}, warmup: warmup}
}

func (b *Backend) Type() model.RuntimeType { return model.RuntimeContainer }

func (b *Backend) Spawn(ctx context.Context, spec backend.Spec) (model.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.SpawnTimeout)
	defer cancel()

	if spec.Image == "" {
		return model.Handle{}, fmt.Errorf("%w: no image configured", backend.ErrImageMissing)
	}

	id, err := b.api.createContainer(ctx, spec)
	if err != nil {
		return model.Handle{}, err
	}
	if err := b.api.startContainer(ctx, id); err != nil {
		return model.Handle{}, fmt.Errorf("starting container: %w", err)
	}

	handle := model.Handle{
		Kind:        model.RuntimeContainer,
		Session:     "agent",
		ContainerID: id,
		Label:       spec.Label,
	}

	if spec.Command != "" {
		if err := b.api.exec(ctx, id, []string{"tmux", "send-keys", "-t", "agent", spec.Command, "Enter"}); err != nil {
			return handle, fmt.Errorf("launching provider command: %w", err)
		}
	}
	return handle, nil
}

func (b *Backend) Kill(ctx context.Context, handle model.Handle) error {
	ctx, cancel := context.WithTimeout(ctx, backend.KillTimeout)
	defer cancel()
	if err := b.api.stopContainer(ctx, handle.ContainerID); err != nil {
		return err
	}
	return b.api.removeContainer(ctx, handle.ContainerID)
}

func (b *Backend) ListManaged(ctx context.Context) ([]model.Handle, error) {
	containers, err := b.api.listManaged(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Handle, 0, len(containers))
	for _, c := range containers {
		out = append(out, model.Handle{
			Kind:        model.RuntimeContainer,
			Session:     "agent",
			ContainerID: c.ID,
			Label:       model.Label{SessionName: c.SessionName},
		})
	}
	return out, nil
}

func (b *Backend) Exists(ctx context.Context, handle model.Handle) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExistsTimeout)
	defer cancel()
	running, _, err := b.api.inspectRunning(ctx, handle.ContainerID)
	return running, err
}

func (b *Backend) AttachCommand(handle model.Handle) string {
	return fmt.Sprintf("docker exec -it %s tmux attach-session -t %s", handle.ContainerID, handle.Session)
}

func (b *Backend) Mux(handle model.Handle) backend.MuxHandle {
	return &muxHandle{api: b.api, handle: handle, warmup: b.warmup}
}

func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, backend.PingTimeout)
	defer cancel()
	return b.api.ping(ctx)
}

type muxHandle struct {
	api    dockerAPI
	handle model.Handle
	warmup time.Duration
}

func (m *muxHandle) SendKeys(ctx context.Context, keys string) error {
	ctx, cancel := context.WithTimeout(ctx, backend.ExecTimeout)
	defer cancel()
	return m.api.exec(ctx, m.handle.ContainerID, []string{"tmux", "send-keys", "-t", m.handle.Session, keys})
}

func (m *muxHandle) Paste(ctx context.Context, text string) error {
	if m.warmup > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.warmup):
		}
	}
	ctx, cancel := context.WithTimeout(ctx, backend.ExecTimeout)
	defer cancel()
	if err := m.api.exec(ctx, m.handle.ContainerID, []string{"tmux", "send-keys", "-t", m.handle.Session, "-l", text}); err != nil {
		return err
	}
	return m.api.exec(ctx, m.handle.ContainerID, []string{"tmux", "send-keys", "-t", m.handle.Session, "Enter"})
}

func (m *muxHandle) CapturePane(ctx context.Context, lines int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExecTimeout)
	defer cancel()
	args := []string{"tmux", "capture-pane", "-t", m.handle.Session, "-p", "-S", "-"}
	if lines > 0 {
		args = []string{"tmux", "capture-pane", "-t", m.handle.Session, "-p", "-S", fmt.Sprintf("-%d", lines)}
	}
	return m.api.execOutput(ctx, m.handle.ContainerID, args)
}

func (m *muxHandle) ListWindows(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExecTimeout)
	defer cancel()
	out, err := m.api.execOutput(ctx, m.handle.ContainerID, []string{"tmux", "list-windows", "-t", m.handle.Session, "-F", "#{window_name}"})
	if err != nil {
		return nil, err
	}
	return tmux.SplitLines(out), nil
}

func (m *muxHandle) ListPanes(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExecTimeout)
	defer cancel()
	out, err := m.api.execOutput(ctx, m.handle.ContainerID, []string{"tmux", "list-panes", "-t", m.handle.Session, "-F", "#{pane_id}"})
	if err != nil {
		return nil, err
	}
	return tmux.SplitLines(out), nil
}
