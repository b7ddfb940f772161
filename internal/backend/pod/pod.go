// Package pod implements backend.Backend over Kubernetes pods via `kubectl
// exec`, grounded directly on the teacher's internal/connection.K8sConnection:
// "File operations and command execution go through kubectl exec to the
// pod. Tmux operations go through the LOCAL tmux session that the terminal
// server maintains — that session's pane is piped to the pod's screen
// session via kubectl exec, so local tmux send-keys/capture-pane
// transparently bridges to the pod." We deliberately do not pull in
// k8s.io/client-go here: the teacher's own pod backend shells out to
// `kubectl` directly rather than using a typed client, and doing the same
// keeps this backend's dependency footprint proportional to what it does
// (see DESIGN.md).
package pod

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/tmux"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// DefaultScreenSession is the default in-pod screen session name the
// provider runs under (teacher's terminal.DefaultScreenSession).
const DefaultScreenSession = "agent"

// Config configures a Kubernetes namespace this backend spawns pods into.
type Config struct {
	Namespace  string
	KubeConfig string
	PodSpec    string // carried from config; Spawn does not read it and creates pods with `kubectl run` from Spec.Image
}

// kubectlRunner executes one `kubectl` invocation and returns its stdout,
// mirroring tmux.Runner's shape (internal/backend/tmux) so both the
// in-pod kubectl calls and the local bridging tmux session can be faked the
// same way in tests (SPEC_FULL.md §A.4/§C.3: "idempotent double/fake backend
// implementations ... used by tests instead of hitting real
// tmux/docker/kubectl/ssh").
type kubectlRunner interface {
	Run(ctx context.Context, args []string) (string, error)
}

// execKubectlRunner shells out to the real kubectl binary.
type execKubectlRunner struct{ kubeconfig string }

func (r execKubectlRunner) Run(ctx context.Context, args []string) (string, error) {
	full := args
	if r.kubeconfig != "" {
		full = append([]string{"--kubeconfig", r.kubeconfig}, args...)
	}
	cmd := exec.CommandContext(ctx, "kubectl", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("kubectl %v: %s", args, msg)
	}
	return stdout.String(), nil
}

// Backend implements backend.Backend by bridging a local tmux session into
// each pod's in-container screen session over `kubectl exec`.
type Backend struct {
	cfg     Config
	kubectl kubectlRunner
	tmux    *tmux.Tmux // local tmux, driving the bridging session
}

// New builds a pod backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg, kubectl: execKubectlRunner{kubeconfig: cfg.KubeConfig}, tmux: tmux.New()}
}

func (b *Backend) Type() model.RuntimeType { return model.RuntimePod }

func (b *Backend) Spawn(ctx context.Context, spec backend.Spec) (model.Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.SpawnTimeout)
	defer cancel()

	if spec.Image == "" {
		return model.Handle{}, fmt.Errorf("%w: no image configured", backend.ErrImageMissing)
	}
	podName := "gt-" + spec.SessionName

	if err := b.kubectlRun(ctx, "run", podName,
		"-n", b.namespace(spec.Namespace),
		"--image", spec.Image,
		"--labels", "tmux-agents.managed=true,tmux-agents.name="+spec.SessionName,
		"--command", "--", "screen", "-dmS", DefaultScreenSession, spec.Command,
	); err != nil {
		return model.Handle{}, fmt.Errorf("creating pod: %w", err)
	}

	if err := b.waitRunning(ctx, podName); err != nil {
		return model.Handle{}, fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}

	exists, err := b.tmux.HasSession(ctx, spec.SessionName)
	if err != nil {
		return model.Handle{}, fmt.Errorf("checking bridging session: %w", err)
	}
	if exists {
		return model.Handle{}, backend.ErrNameConflict
	}
	bridgeCmd := fmt.Sprintf("kubectl exec -it %s -n %s -- screen -x %s",
		podName, b.namespace(spec.Namespace), DefaultScreenSession)
	if err := b.tmux.NewSession(ctx, spec.SessionName, "", bridgeCmd); err != nil {
		return model.Handle{}, fmt.Errorf("spawning bridging session: %w", err)
	}

	return model.Handle{
		Kind:      model.RuntimePod,
		Session:   spec.SessionName,
		PodName:   podName,
		Namespace: b.namespace(spec.Namespace),
		Label:     spec.Label,
	}, nil
}

func (b *Backend) Kill(ctx context.Context, handle model.Handle) error {
	ctx, cancel := context.WithTimeout(ctx, backend.KillTimeout)
	defer cancel()
	_ = b.tmux.KillSession(ctx, handle.Session)
	if err := b.kubectlRun(ctx, "delete", "pod", handle.PodName, "-n", handle.Namespace, "--ignore-not-found", "--wait=false"); err != nil {
		return fmt.Errorf("deleting pod: %w", err)
	}
	return nil
}

func (b *Backend) ListManaged(ctx context.Context) ([]model.Handle, error) {
	out, err := b.kubectl.Run(ctx, []string{"get", "pods",
		"-n", b.cfg.Namespace, "-l", "tmux-agents.managed=true",
		"-o", "jsonpath={range .items[*]}{.metadata.name}{\" \"}{.metadata.labels.tmux-agents\\.name}{\"\\n\"}{end}"})
	if err != nil {
		return nil, fmt.Errorf("listing managed pods: %w", err)
	}
	var handles []model.Handle
	for _, line := range tmux.SplitLines(out) {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) < 1 || parts[0] == "" {
			continue
		}
		session := parts[0]
		if len(parts) == 2 && parts[1] != "" {
			session = parts[1]
		}
		handles = append(handles, model.Handle{
			Kind:      model.RuntimePod,
			Session:   session,
			PodName:   parts[0],
			Namespace: b.cfg.Namespace,
		})
	}
	return handles, nil
}

func (b *Backend) Exists(ctx context.Context, handle model.Handle) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, backend.ExistsTimeout)
	defer cancel()
	phase, err := b.kubectl.Run(ctx, []string{"get", "pod", handle.PodName, "-n", handle.Namespace, "-o", "jsonpath={.status.phase}"})
	if err != nil {
		return false, nil //nolint:nilerr // missing pod means "does not exist", not an error
	}
	return strings.TrimSpace(phase) == "Running", nil
}

func (b *Backend) AttachCommand(handle model.Handle) string {
	return fmt.Sprintf("tmux attach-session -t %s", handle.Session)
}

func (b *Backend) Mux(handle model.Handle) backend.MuxHandle {
	return &muxHandle{tmux: b.tmux, session: handle.Session}
}

func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, backend.PingTimeout)
	defer cancel()
	if _, err := b.kubectl.Run(ctx, []string{"get", "namespace", b.cfg.Namespace}); err != nil {
		return fmt.Errorf("%w: %v", backend.ErrUnreachable, err)
	}
	return nil
}

func (b *Backend) namespace(override string) string {
	if override != "" {
		return override
	}
	return b.cfg.Namespace
}

func (b *Backend) waitRunning(ctx context.Context, podName string) error {
	deadline := time.Now().Add(backend.SpawnTimeout)
	for time.Now().Before(deadline) {
		phase, err := b.kubectl.Run(ctx, []string{"get", "pod", podName, "-n", b.cfg.Namespace, "-o", "jsonpath={.status.phase}"})
		if err == nil && strings.TrimSpace(phase) == "Running" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("pod %s did not reach Running before timeout", podName)
}

func (b *Backend) kubectlRun(ctx context.Context, args ...string) error {
	_, err := b.kubectl.Run(ctx, args)
	return err
}

type muxHandle struct {
	tmux    *tmux.Tmux
	session string
}

func (m *muxHandle) SendKeys(ctx context.Context, keys string) error {
	return m.tmux.SendKeysRaw(ctx, m.session, keys)
}

func (m *muxHandle) Paste(ctx context.Context, text string) error {
	return m.tmux.Paste(ctx, m.session, text, 0)
}

func (m *muxHandle) CapturePane(ctx context.Context, lines int) (string, error) {
	return m.tmux.CapturePane(ctx, m.session, lines)
}

func (m *muxHandle) ListWindows(ctx context.Context) ([]string, error) {
	return m.tmux.ListWindows(ctx, m.session)
}

func (m *muxHandle) ListPanes(ctx context.Context) ([]string, error) {
	return m.tmux.ListPanes(ctx, m.session)
}
