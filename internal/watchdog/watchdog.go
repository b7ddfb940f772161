// Package watchdog implements the small outer process that supervises the
// daemon binary (spec.md §4.7): it writes a pidfile with exclusive-create
// semantics, forks the daemon, waits on it, and restarts it on exit with a
// circuit breaker that backs off after a burst of crashes.
//
// Grounded directly on the teacher's internal/daemon (gofrs/flock pidfile
// locking in daemon.go's Run, ad hoc restart-counting in
// restart_tracker.go's crash-loop detection), generalized here onto
// github.com/sony/gobreaker's state machine (donated by jordigilh-kubernaut)
// so the sliding-window-count-then-backoff policy spec.md §4.7 describes is
// expressed with a real circuit breaker instead of hand-rolled counters.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/sony/gobreaker"
)

// restartWindow is the sliding window restarts are counted over; tripThreshold
// consecutive failures within it opens the breaker (spec.md §4.7: "counts
// restarts in a sliding 30s window; after 5 restarts it backs off for 60s").
const (
	restartWindow  = 30 * time.Second
	backoffTimeout = 60 * time.Second
	tripThreshold  = 5
)

// errShutdown is returned by runOnce when the child exited because the
// watchdog itself was asked to stop (ctx cancelled or SIGTERM/SIGINT
// received), as opposed to the child crashing on its own.
var errShutdown = errors.New("watchdog: shutdown requested")

// Config describes the daemon binary the watchdog supervises.
type Config struct {
	PidFile    string   // watchdog's own pidfile, exclusive-create (spec.md §4.7)
	BinaryPath string   // path to the daemon executable
	Args       []string // arguments passed to every spawned instance
	Foreground bool      // suppress detachment, stream child's stdio to our own
}

// Watchdog supervises one daemon binary across restarts.
type Watchdog struct {
	cfg Config
	log *slog.Logger
	cb  *gobreaker.CircuitBreaker
}

// New builds a Watchdog.
func New(cfg Config, log *slog.Logger) *Watchdog {
	settings := gobreaker.Settings{
		Name:        "daemon-restart",
		Interval:    restartWindow,
		Timeout:     backoffTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("watchdog circuit breaker state change", "from", from, "to", to)
		},
	}
	return &Watchdog{cfg: cfg, log: log, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Run acquires the exclusive pidfile lock (refusing to start a second
// watchdog instance), then loops: spawn the daemon, wait for it to exit,
// restart unless the watchdog itself was asked to stop. It blocks until
// ctx is cancelled or a terminating signal arrives.
func (w *Watchdog) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(w.cfg.PidFile), 0o755); err != nil {
		return fmt.Errorf("creating pidfile directory: %w", err)
	}

	lock := flock.New(w.cfg.PidFile + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring watchdog lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("watchdog already running (pidfile lock held)")
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.WriteFile(w.cfg.PidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("writing pidfile: %w", err)
	}
	defer func() { _ = os.Remove(w.cfg.PidFile) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.cb.State() == gobreaker.StateOpen {
			w.log.Warn("circuit breaker open, waiting before next restart attempt")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		err := w.runOnce(ctx, sigCh)
		if errors.Is(err, errShutdown) {
			return nil
		}
		_, _ = w.cb.Execute(func() (any, error) { return nil, err })
		if err != nil {
			w.log.Warn("daemon exited, restarting", "error", err)
		} else {
			w.log.Info("daemon exited cleanly, restarting")
		}
	}
}

// runOnce spawns one instance of the daemon binary and blocks until it
// exits, a terminating signal arrives, or ctx is cancelled. SIGHUP is
// forwarded to the child as a config-reload request rather than treated as
// a restart trigger (spec.md §4.7: "SIGHUP -> forward as config-reload
// request").
func (w *Watchdog) runOnce(ctx context.Context, sigCh <-chan os.Signal) error {
	cmd := exec.Command(w.cfg.BinaryPath, w.cfg.Args...)
	cmd.Env = os.Environ()
	if w.cfg.Foreground {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	w.log.Info("daemon started", "pid", cmd.Process.Pid, "foreground", w.cfg.Foreground)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)
			<-done
			return errShutdown
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				_ = cmd.Process.Signal(syscall.SIGHUP)
				continue
			}
			_ = cmd.Process.Signal(syscall.SIGTERM)
			<-done
			return errShutdown
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon exited: %w", err)
			}
			return nil
		}
	}
}
