// Package localsocket serves the RPC router over a Unix domain socket with
// newline-delimited JSON envelopes (spec.md §6, transport 1: "Local domain
// socket at a configurable path... newline-delimited JSON envelopes").
// Grounded in shape on the teacher's internal/rpcserver (one listener, one
// goroutine per accepted connection dispatching into the same handler
// table this router shares with every other transport).
package localsocket

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc"
)

const maxLineBytes = 4 << 20 // 4MiB, generous for a pasted pipeline prompt in params

// Server accepts connections on a Unix domain socket, reading one JSON
// rpc.Request per line and writing one JSON rpc.Response per line back.
type Server struct {
	path   string
	router *rpc.Router
	log    *slog.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New builds a Server bound to path (not yet listening).
func New(path string, router *rpc.Router, log *slog.Logger) *Server {
	return &Server{path: path, router: router, log: log}
}

// ListenAndServe removes a stale socket file left by a prior unclean exit,
// binds, and accepts connections until Close is called.
func (s *Server) ListenAndServe() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("local socket accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// Close stops accepting and waits for in-flight connections to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

// Probe self-connects to the socket, the self-check the Health Monitor runs
// for every transport listener (spec.md §4.8).
func (s *Server) Probe(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("dialing local socket: %w", err)
	}
	return conn.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var req rpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := rpc.Response{
				ProtocolVersion: rpc.ProtocolVersion,
				Error: &rpc.WireError{
					Code:    apperr.InvalidParams.Code(),
					Message: fmt.Sprintf("malformed envelope: %v", err),
					Kind:    apperr.InvalidParams.String(),
				},
			}
			if err := enc.Encode(resp); err != nil {
				return
			}
			continue
		}
		resp := s.router.Handle(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}
