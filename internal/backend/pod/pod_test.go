package pod

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/tmux"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// fakePod is one kubectl-managed pod tracked by fakeKubectlRunner.
type fakePod struct {
	name, session, phase string
}

// fakeKubectlRunner is an in-memory double for kubectlRunner, standing in
// for the real `kubectl` binary (SPEC_FULL.md §A.4/§C.3).
type fakeKubectlRunner struct {
	pods map[string]*fakePod
	nsOK bool
}

func newFakeKubectlRunner() *fakeKubectlRunner {
	return &fakeKubectlRunner{pods: make(map[string]*fakePod), nsOK: true}
}

func (f *fakeKubectlRunner) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "run":
		podName := args[1]
		session := ""
		for i, a := range args {
			if a == "--labels" && i+1 < len(args) {
				for _, part := range strings.Split(args[i+1], ",") {
					if strings.HasPrefix(part, "tmux-agents.name=") {
						session = strings.TrimPrefix(part, "tmux-agents.name=")
					}
				}
			}
		}
		f.pods[podName] = &fakePod{name: podName, session: session, phase: "Running"}
		return "", nil
	case "delete":
		if len(args) > 2 {
			delete(f.pods, args[2])
		}
		return "", nil
	case "get":
		if len(args) < 2 {
			return "", nil
		}
		switch args[1] {
		case "pods":
			var lines []string
			for _, p := range f.pods {
				lines = append(lines, p.name+" "+p.session)
			}
			return strings.Join(lines, "\n"), nil
		case "pod":
			p, ok := f.pods[args[2]]
			if !ok {
				return "", errors.New("pods \"" + args[2] + "\" not found")
			}
			return p.phase, nil
		case "namespace":
			if f.nsOK {
				return "", nil
			}
			return "", errors.New("namespace not found")
		}
	}
	return "", nil
}

// fakeTmuxRunner is an in-memory double for tmux.Runner, standing in for a
// real local tmux server that bridges into each pod's screen session.
type fakeTmuxRunner struct {
	sessions map[string]bool
}

func newFakeTmuxRunner() *fakeTmuxRunner {
	return &fakeTmuxRunner{sessions: make(map[string]bool)}
}

func (f *fakeTmuxRunner) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "has-session":
		if f.sessions[args[2]] {
			return "", nil
		}
		return "", errors.New("can't find session")
	case "new-session":
		for i, a := range args {
			if a == "-s" && i+1 < len(args) {
				f.sessions[args[i+1]] = true
			}
		}
		return "", nil
	case "kill-session":
		delete(f.sessions, args[2])
		return "", nil
	}
	return "", nil
}

func newTestBackend() (*Backend, *fakeKubectlRunner, *fakeTmuxRunner) {
	kr := newFakeKubectlRunner()
	tr := newFakeTmuxRunner()
	b := &Backend{
		cfg:     Config{Namespace: "agents"},
		kubectl: kr,
		tmux:    tmux.NewWithRunner(tr),
	}
	return b, kr, tr
}

func TestBackendImplementsInterface(t *testing.T) {
	var _ backend.Backend = (*Backend)(nil)
}

func TestSpawnRequiresImage(t *testing.T) {
	b, _, _ := newTestBackend()
	_, err := b.Spawn(context.Background(), backend.Spec{SessionName: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrImageMissing)
}

func TestSpawnKillExistsRoundTrip(t *testing.T) {
	b, _, _ := newTestBackend()
	label := model.Label{Managed: true, AgentID: "t1", SessionName: "gt-t1", Provider: "claude"}

	handle, err := b.Spawn(context.Background(), backend.Spec{
		SessionName: "gt-t1",
		Image:       "agents/claude:latest",
		Label:       label,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimePod, handle.Kind)
	assert.Equal(t, "gt-gt-t1", handle.PodName)
	assert.Equal(t, "agents", handle.Namespace)
	assert.Equal(t, label, handle.Label)

	exists, err := b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, b.Kill(context.Background(), handle))

	exists, err = b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListManagedRoundTripsLabel(t *testing.T) {
	b, _, _ := newTestBackend()
	handle, err := b.Spawn(context.Background(), backend.Spec{
		SessionName: "gt-t2",
		Image:       "agents/claude:latest",
		Label:       model.Label{AgentID: "t2", SessionName: "gt-t2"},
	})
	require.NoError(t, err)

	handles, err := b.ListManaged(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, handle.PodName, handles[0].PodName)
	assert.Equal(t, "gt-t2", handles[0].Session)
}

func TestPingReflectsNamespaceReachability(t *testing.T) {
	b, kr, _ := newTestBackend()
	assert.NoError(t, b.Ping(context.Background()))

	kr.nsOK = false
	err := b.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrUnreachable)
}

func TestAttachCommandFormat(t *testing.T) {
	b, _, _ := newTestBackend()
	cmd := b.AttachCommand(model.Handle{Session: "gt-t1"})
	assert.Equal(t, "tmux attach-session -t gt-t1", cmd)
}
