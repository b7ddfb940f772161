package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(events *eventbus.Bus) *rpc.Router {
	r := rpc.New(discardLog(), events)
	r.Register("echo.ping", func(ctx context.Context, raw json.RawMessage) (any, error) {
		return map[string]string{"pong": "ok"}, nil
	})
	return r
}

func TestHandleRPCRoundTrip(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:0", newTestRouter(events), events, discardLog())

	body, err := json.Marshal(rpc.Request{ProtocolVersion: rpc.ProtocolVersion, ID: json.RawMessage(`"1"`), Method: "echo.ping"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestHandleRPCMalformedBodyIsBadRequest(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:0", newTestRouter(events), events, discardLog())

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEventsStreamsPublishedEvent(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:0", newTestRouter(events), events, discardLog())

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 300*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleEvents(rec, req)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	events.Publish(eventbus.Event{Type: "task.created"})

	<-done
	assert.Contains(t, rec.Body.String(), "event: task.created")
}

func TestProbeFailsWithoutListener(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:1", newTestRouter(events), events, discardLog())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Probe(ctx))
}
