// Package httptransport serves the RPC router over HTTP (spec.md §6,
// transport 2: "POST /rpc accepting a single envelope and returning one")
// and the streaming push endpoint sharing the same listener (transport 3:
// "GET /events returning a server-streamed sequence of event/data
// records"). Grounded on the teacher's terminal/connection HTTP usage and
// the rest of the retrieval pack's chi-based services (jordigilh-kubernaut,
// r3e-network-service_layer both route their HTTP surface through
// github.com/go-chi/chi/v5).
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc"
)

// Server wraps an *http.Server dispatching POST /rpc and GET /events.
type Server struct {
	addr   string
	router *rpc.Router
	events *eventbus.Bus
	log    *slog.Logger

	srv *http.Server
}

// New builds a Server bound to addr (loopback by default, spec.md §6).
func New(addr string, router *rpc.Router, events *eventbus.Bus, log *slog.Logger) *Server {
	s := &Server{addr: addr, router: router, events: events, log: log}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Post("/rpc", s.handleRPC)
	mux.Get("/events", s.handleEvents)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
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

// Probe self-checks the HTTP listener via daemon.health, the per-transport
// self-connect the Health Monitor runs (spec.md §4.8).
func (s *Server) Probe(ctx context.Context) error {
	body, err := json.Marshal(rpc.Request{ProtocolVersion: rpc.ProtocolVersion, Method: "daemon.health"})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+s.addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probing http transport: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http transport probe: status %d", resp.StatusCode)
	}
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(rpc.Response{
			ProtocolVersion: rpc.ProtocolVersion,
			Error:           &rpc.WireError{Code: -32700, Message: "parse error", Kind: "invalid-params"},
		})
		return
	}

	resp := s.router.Handle(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleEvents streams every eventbus.Event as an SSE record (spec.md §6:
// "event: <name>\ndata: <json>\n\n"). One subscription per connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("marshaling event for SSE", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
