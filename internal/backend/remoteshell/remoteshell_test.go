package remoteshell

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

// fakeSession is one remote tmux session tracked by fakeSSHRunner.
type fakeSession struct {
	options map[string]string
}

// fakeSSHRunner is an in-memory double for tmux.Runner, standing in for the
// `ssh ... tmux ...` round trip (SPEC_FULL.md §A.4/§C.3: "idempotent
// double/fake backend implementations ... used by tests instead of hitting
// real tmux/docker/kubectl/ssh").
type fakeSSHRunner struct {
	sessions map[string]*fakeSession
}

func newFakeSSHRunner() *fakeSSHRunner {
	return &fakeSSHRunner{sessions: make(map[string]*fakeSession)}
}

func (f *fakeSSHRunner) Run(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", nil
	}
	switch args[0] {
	case "has-session":
		if _, ok := f.sessions[args[2]]; ok {
			return "", nil
		}
		return "", errors.New("can't find session")
	case "new-session":
		session := ""
		for i, a := range args {
			if a == "-s" && i+1 < len(args) {
				session = args[i+1]
			}
		}
		f.sessions[session] = &fakeSession{options: make(map[string]string)}
		return "", nil
	case "set-option":
		session, key, value := args[2], args[4], args[5]
		s, ok := f.sessions[session]
		if !ok {
			return "", errors.New("can't find session")
		}
		s.options[key] = value
		return "", nil
	case "send-keys":
		session := args[2]
		if _, ok := f.sessions[session]; !ok {
			return "", errors.New("can't find session")
		}
		return "", nil
	case "kill-session":
		session := args[2]
		if _, ok := f.sessions[session]; !ok {
			return "", errors.New("can't find session")
		}
		delete(f.sessions, session)
		return "", nil
	case "list-sessions":
		var lines []string
		for name, s := range f.sessions {
			lines = append(lines, name+" "+s.options["managed"])
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", nil
}

func newTestBackend() (*Backend, *fakeSSHRunner) {
	r := newFakeSSHRunner()
	b := &Backend{cfg: Config{Host: "10.0.0.5", Port: 22, User: "agent"}}
	b.tmux = tmux.NewWithRunner(r)
	return b, r
}

func TestBackendImplementsInterface(t *testing.T) {
	var _ backend.Backend = (*Backend)(nil)
}

func TestSpawnKillExistsRoundTrip(t *testing.T) {
	b, _ := newTestBackend()
	label := model.Label{Managed: true, AgentID: "t1", SessionName: "gt-t1", Provider: "claude"}

	handle, err := b.Spawn(context.Background(), backend.Spec{
		SessionName: "gt-t1",
		Command:     "claude",
		Label:       label,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeRemoteShell, handle.Kind)
	assert.Equal(t, "gt-t1", handle.Session)
	assert.Equal(t, "10.0.0.5", handle.Host)
	assert.Equal(t, label, handle.Label)

	exists, err := b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, b.Kill(context.Background(), handle))

	exists, err = b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSpawnRejectsNameConflict(t *testing.T) {
	b, _ := newTestBackend()
	_, err := b.Spawn(context.Background(), backend.Spec{SessionName: "gt-dup"})
	require.NoError(t, err)

	_, err = b.Spawn(context.Background(), backend.Spec{SessionName: "gt-dup"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrNameConflict)
}

func TestKillIsIdempotent(t *testing.T) {
	b, _ := newTestBackend()
	handle := model.Handle{Session: "never-existed"}
	assert.NoError(t, b.Kill(context.Background(), handle))
	assert.NoError(t, b.Kill(context.Background(), handle))
}

func TestListManagedRoundTripsLabel(t *testing.T) {
	b, _ := newTestBackend()
	handle, err := b.Spawn(context.Background(), backend.Spec{SessionName: "gt-t2"})
	require.NoError(t, err)
	require.NoError(t, b.tmux.SetOption(context.Background(), handle.Session, "managed", "true"))

	handles, err := b.ListManaged(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "gt-t2", handles[0].Session)
	assert.Equal(t, "10.0.0.5", handles[0].Host)
}

func TestPingFailsWithoutIdentityFile(t *testing.T) {
	b, _ := newTestBackend()
	err := b.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrUnreachable)
}

func TestAttachCommandFormat(t *testing.T) {
	b, _ := newTestBackend()
	cmd := b.AttachCommand(model.Handle{Session: "gt-t1"})
	assert.Equal(t, "ssh agent@10.0.0.5 -t tmux attach-session -t gt-t1", cmd)
}
