// Package tmux wraps the tmux(1) binary, providing the small set of
// operations every backend bridges into: send-keys, paste, capture-pane,
// list-windows/panes, has-session, kill-session. Grounded on the teacher's
// internal/tmux and internal/terminal.TmuxBackend, trimmed to the subset
// spec.md §4.1 actually names and generalized so any backend (local,
// remote-shell, container, pod) can shell a command through a prefix and
// reuse the same argument building.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes a tmux command, optionally prefixed by a remote-exec
// wrapper (ssh, kubectl exec, docker exec). The default Runner shells out to
// the local tmux binary directly, matching the teacher's local backend; a
// backend that needs remote execution supplies its own Runner that prefixes
// the argv (see backend/remoteshell, backend/container, backend/pod).
type Runner interface {
	Run(ctx context.Context, args []string) (stdout string, err error)
}

// LocalRunner shells out to the local tmux binary.
type LocalRunner struct {
	// Path is the tmux binary path; empty means resolve via $PATH.
	Path string
}

func (r LocalRunner) Run(ctx context.Context, args []string) (string, error) {
	path := r.Path
	if path == "" {
		var err error
		path, err = exec.LookPath("tmux")
		if err != nil {
			return "", fmt.Errorf("tmux not found on PATH: %w", err)
		}
	}
	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("tmux %s: %s", strings.Join(args, " "), msg)
	}
	return stdout.String(), nil
}

// Tmux drives a multiplexer through a Runner.
type Tmux struct {
	run Runner
}

// New builds a Tmux that shells out locally.
func New() *Tmux { return &Tmux{run: LocalRunner{}} }

// NewWithRunner builds a Tmux driven by a custom Runner (remote-exec prefix).
func NewWithRunner(r Runner) *Tmux { return &Tmux{run: r} }

// Ping proves the tmux binary is reachable and able to start a server,
// regardless of whether any session currently exists.
func (t *Tmux) Ping(ctx context.Context) error {
	_, err := t.run.Run(ctx, []string{"list-sessions"})
	if err == nil {
		return nil
	}
	// "no server running on <socket>" still proves tmux itself works.
	if strings.Contains(err.Error(), "no server running") {
		return nil
	}
	return err
}

// HasSession reports whether a session with the given name exists.
func (t *Tmux) HasSession(ctx context.Context, session string) (bool, error) {
	_, err := t.run.Run(ctx, []string{"has-session", "-t", session})
	if err != nil {
		return false, nil //nolint:nilerr // has-session exits non-zero for "no"
	}
	return true, nil
}

// NewSession creates a detached session named session in dir, running cmd.
func (t *Tmux) NewSession(ctx context.Context, session, dir, cmd string) error {
	args := []string{"new-session", "-d", "-s", session}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	if cmd != "" {
		args = append(args, cmd)
	}
	_, err := t.run.Run(ctx, args)
	return err
}

// SetOption sets a session user-option, used to carry the daemon's label
// (spec.md §6: "Backend labelling").
func (t *Tmux) SetOption(ctx context.Context, session, key, value string) error {
	_, err := t.run.Run(ctx, []string{"set-option", "-t", session, "-p", key, value})
	return err
}

// GetOption reads a previously-set session user-option.
func (t *Tmux) GetOption(ctx context.Context, session, key string) (string, error) {
	out, err := t.run.Run(ctx, []string{"show-options", "-t", session, "-p", "-v", key})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SendKeysRaw sends keys using tmux key names (e.g. "y", "Enter", "C-c").
func (t *Tmux) SendKeysRaw(ctx context.Context, session, keys string) error {
	_, err := t.run.Run(ctx, []string{"send-keys", "-t", session, keys})
	return err
}

// SendKeysAndEnter sends keys followed by Enter as a single logical action.
func (t *Tmux) SendKeysAndEnter(ctx context.Context, session, keys string) error {
	_, err := t.run.Run(ctx, []string{"send-keys", "-t", session, keys, "Enter"})
	return err
}

// Paste injects literal text (not interpreted as tmux key names) followed by
// Enter, after a provider-configured warm-up delay (spec.md §4.2 step 4).
func (t *Tmux) Paste(ctx context.Context, session, text string, warmup time.Duration) error {
	if warmup > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(warmup):
		}
	}
	if _, err := t.run.Run(ctx, []string{"send-keys", "-t", session, "-l", text}); err != nil {
		return fmt.Errorf("pasting text: %w", err)
	}
	_, err := t.run.Run(ctx, []string{"send-keys", "-t", session, "Enter"})
	return err
}

// CapturePane captures the last n lines of pane output (n <= 0 means the
// full scrollback).
func (t *Tmux) CapturePane(ctx context.Context, session string, n int) (string, error) {
	args := []string{"capture-pane", "-t", session, "-p"}
	if n > 0 {
		args = append(args, "-S", strconv.Itoa(-n))
	} else {
		args = append(args, "-S", "-")
	}
	return t.run.Run(ctx, args)
}

// ListWindows lists window names in the session.
func (t *Tmux) ListWindows(ctx context.Context, session string) ([]string, error) {
	out, err := t.run.Run(ctx, []string{"list-windows", "-t", session, "-F", "#{window_name}"})
	if err != nil {
		return nil, err
	}
	return splitNonEmpty(out), nil
}

// ListPanes lists pane ids in the session.
func (t *Tmux) ListPanes(ctx context.Context, session string) ([]string, error) {
	out, err := t.run.Run(ctx, []string{"list-panes", "-t", session, "-F", "#{pane_id}"})
	if err != nil {
		return nil, err
	}
	return splitNonEmpty(out), nil
}

// ListManagedSessions lists every session carrying the daemon's label
// option, across the whole tmux server.
func (t *Tmux) ListManagedSessions(ctx context.Context, labelKey string) ([]string, error) {
	out, err := t.run.Run(ctx, []string{
		"list-sessions", "-F",
		fmt.Sprintf("#{session_name} #{session_%s}", labelKey),
	})
	if err != nil {
		// No server running at all means no managed sessions, not an error.
		return nil, nil
	}
	var names []string
	for _, line := range splitNonEmpty(out) {
		parts := strings.SplitN(line, " ", 2)
		if len(parts) == 2 && parts[1] == "true" {
			names = append(names, parts[0])
		}
	}
	return names, nil
}

// IsPaneDead reports whether the pane's process has exited.
func (t *Tmux) IsPaneDead(ctx context.Context, session string) (bool, error) {
	out, err := t.run.Run(ctx, []string{"display-message", "-t", session, "-p", "#{pane_dead}"})
	if err != nil {
		return true, err
	}
	return strings.TrimSpace(out) == "1", nil
}

// KillSession terminates a session; idempotent (no error if it is already
// gone).
func (t *Tmux) KillSession(ctx context.Context, session string) error {
	_, err := t.run.Run(ctx, []string{"kill-session", "-t", session})
	if err != nil {
		if exists, hasErr := t.HasSession(ctx, session); hasErr == nil && !exists {
			return nil
		}
	}
	return err
}

// SplitLines splits command output into non-empty lines. Exported so other
// backends (container, pod) that shell tmux commands through their own exec
// mechanism can parse list-windows/list-panes output the same way.
func SplitLines(s string) []string { return splitNonEmpty(s) }

func splitNonEmpty(s string) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
