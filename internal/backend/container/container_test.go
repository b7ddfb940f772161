package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// fakeDockerAPI is an in-memory double for dockerAPI (SPEC_FULL.md §A.4/
// §C.3: "idempotent double/fake backend implementations ... used by tests
// instead of hitting real tmux/docker/kubectl/ssh"), exercising Backend's
// spawn/kill/exists/listManaged/label round-trip without a live daemon.
type fakeDockerAPI struct {
	nextID     int
	containers map[string]*fakeContainer
	pingErr    error
}

type fakeContainer struct {
	id      string
	name    string
	running bool
}

func newFakeDockerAPI() *fakeDockerAPI {
	return &fakeDockerAPI{containers: make(map[string]*fakeContainer)}
}

func (f *fakeDockerAPI) createContainer(ctx context.Context, spec backend.Spec) (string, error) {
	f.nextID++
	id := "c" + string(rune('0'+f.nextID))
	f.containers[id] = &fakeContainer{id: id, name: spec.SessionName}
	return id, nil
}

func (f *fakeDockerAPI) startContainer(ctx context.Context, id string) error {
	c, ok := f.containers[id]
	if !ok {
		return assertNotFound
	}
	c.running = true
	return nil
}

func (f *fakeDockerAPI) stopContainer(ctx context.Context, id string) error {
	if c, ok := f.containers[id]; ok {
		c.running = false
	}
	return nil
}

func (f *fakeDockerAPI) removeContainer(ctx context.Context, id string) error {
	delete(f.containers, id)
	return nil
}

func (f *fakeDockerAPI) inspectRunning(ctx context.Context, id string) (bool, bool, error) {
	c, ok := f.containers[id]
	if !ok {
		return false, false, nil
	}
	return c.running, true, nil
}

func (f *fakeDockerAPI) listManaged(ctx context.Context) ([]managedContainer, error) {
	var out []managedContainer
	for _, c := range f.containers {
		out = append(out, managedContainer{ID: c.id, SessionName: c.name})
	}
	return out, nil
}

func (f *fakeDockerAPI) ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDockerAPI) exec(ctx context.Context, containerID string, cmd []string) error {
	return nil
}

func (f *fakeDockerAPI) execOutput(ctx context.Context, containerID string, cmd []string) (string, error) {
	return "", nil
}

var assertNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "container not found" }

func TestBackendImplementsInterface(t *testing.T) {
	var _ backend.Backend = (*Backend)(nil)
}

func TestSpawnRequiresImage(t *testing.T) {
	b := &Backend{api: newFakeDockerAPI()}
	_, err := b.Spawn(context.Background(), backend.Spec{SessionName: "s1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrImageMissing)
}

func TestSpawnKillExistsRoundTrip(t *testing.T) {
	api := newFakeDockerAPI()
	b := &Backend{api: api}

	label := model.Label{Managed: true, AgentID: "t1", SessionName: "gt-t1", Provider: "claude"}
	handle, err := b.Spawn(context.Background(), backend.Spec{
		SessionName: "gt-t1",
		Image:       "agents/claude:latest",
		Label:       label,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RuntimeContainer, handle.Kind)
	assert.Equal(t, label, handle.Label)
	assert.NotEmpty(t, handle.ContainerID)

	exists, err := b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.True(t, exists)

	err = b.Kill(context.Background(), handle)
	require.NoError(t, err)

	exists, err = b.Exists(context.Background(), handle)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestKillIsIdempotent(t *testing.T) {
	api := newFakeDockerAPI()
	b := &Backend{api: api}
	handle := model.Handle{ContainerID: "does-not-exist"}
	assert.NoError(t, b.Kill(context.Background(), handle))
	assert.NoError(t, b.Kill(context.Background(), handle))
}

func TestListManagedRoundTripsLabel(t *testing.T) {
	api := newFakeDockerAPI()
	b := &Backend{api: api}

	handle, err := b.Spawn(context.Background(), backend.Spec{
		SessionName: "gt-t2",
		Image:       "agents/claude:latest",
		Label:       model.Label{AgentID: "t2", SessionName: "gt-t2"},
	})
	require.NoError(t, err)

	handles, err := b.ListManaged(context.Background())
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, handle.ContainerID, handles[0].ContainerID)
	assert.Equal(t, "gt-t2", handles[0].Label.SessionName)
}

func TestPingPropagatesFailure(t *testing.T) {
	api := newFakeDockerAPI()
	api.pingErr = assertNotFound
	b := &Backend{api: api}
	assert.Error(t, b.Ping(context.Background()))
}

func TestAttachCommandFormat(t *testing.T) {
	b := &Backend{}
	cmd := b.AttachCommand(model.Handle{ContainerID: "abc123", Session: "agent"})
	assert.Equal(t, "docker exec -it abc123 tmux attach-session -t agent", cmd)
}
