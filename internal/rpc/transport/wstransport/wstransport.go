// Package wstransport serves the RPC router over a bidirectional WebSocket
// listener (spec.md §6, transport 4: "both RPC envelopes and event pushes"
// on the HTTP port + 1). Grounded on gorilla/websocket, donated by
// kdlbs-kandev and r3e-network-service_layer for their own bidirectional
// transports.
package wstransport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc"
)

var upgrader = websocket.Upgrader{
	// Loopback-only by default (spec.md §6); a configured BindAddr is the
	// operator's own choice to widen exposure, so we don't second-guess
	// Origin here the way a public-facing service would have to.
	CheckOrigin: func(*http.Request) bool { return true },
}

// pushFrame is an out-of-band event delivered over the same socket as RPC
// request/response frames; clients distinguish it from a Response by the
// presence of "event" instead of "result"/"error".
type pushFrame struct {
	Event string         `json:"event"`
	Data  eventbus.Event `json:"data"`
}

// Server accepts WebSocket connections, each becoming one bidirectional
// RPC + event-push session.
type Server struct {
	addr   string
	router *rpc.Router
	events *eventbus.Bus
	log    *slog.Logger

	srv *http.Server
}

// New builds a Server bound to addr (conventionally the HTTP port + 1).
func New(addr string, router *rpc.Router, events *eventbus.Bus, log *slog.Logger) *Server {
	s := &Server{addr: addr, router: router, events: events, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// ListenAndServe blocks serving until Close is called.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts the server down.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Probe dials the listener and immediately closes, the transport self-check
// the Health Monitor runs (spec.md §4.8).
func (s *Server) Probe(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("probing ws transport: %w", err)
	}
	return conn.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	writeMu := make(chan struct{}, 1)
	writeMu <- struct{}{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var req rpc.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := s.router.Handle(r.Context(), req)
			<-writeMu
			err := conn.WriteJSON(resp)
			writeMu <- struct{}{}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			<-writeMu
			err := conn.WriteJSON(pushFrame{Event: string(ev.Type), Data: ev})
			writeMu <- struct{}{}
			if err != nil {
				return
			}
		}
	}
}
