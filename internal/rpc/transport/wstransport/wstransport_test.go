package wstransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func TestWebSocketRPCRoundTrip(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:0", newTestRouter(events), events, discardLog())
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := rpc.Request{ProtocolVersion: rpc.ProtocolVersion, ID: json.RawMessage(`"1"`), Method: "echo.ping"}
	require.NoError(t, conn.WriteJSON(req))

	var resp rpc.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Nil(t, resp.Error)
}

func TestWebSocketPushesEvents(t *testing.T) {
	events := eventbus.New()
	s := New("127.0.0.1:0", newTestRouter(events), events, discardLog())
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return events.SubscriberCount() > 0 }, time.Second, 5*time.Millisecond)
	events.Publish(eventbus.Event{Type: eventbus.EventTaskCreated, TaskID: "t-1"})

	var frame pushFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "task.created", frame.Event)
	assert.Equal(t, "t-1", frame.Data.TaskID)
}
