package watchdog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceCleanExit(t *testing.T) {
	w := &Watchdog{log: discardLog(), cfg: Config{BinaryPath: "/bin/sh", Args: []string{"-c", "exit 0"}}}
	sigCh := make(chan os.Signal, 1)
	err := w.runOnce(context.Background(), sigCh)
	assert.NoError(t, err)
}

func TestRunOnceNonZeroExit(t *testing.T) {
	w := &Watchdog{log: discardLog(), cfg: Config{BinaryPath: "/bin/sh", Args: []string{"-c", "exit 1"}}}
	sigCh := make(chan os.Signal, 1)
	err := w.runOnce(context.Background(), sigCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon exited")
}

func TestRunOnceContextCancelSendsShutdown(t *testing.T) {
	w := &Watchdog{log: discardLog(), cfg: Config{BinaryPath: "/bin/sh", Args: []string{"-c", "sleep 5"}}}
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := w.runOnce(ctx, sigCh)
	assert.ErrorIs(t, err, errShutdown)
}

func TestRunReturnsImmediatelyWhenContextAlreadyCancelled(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		PidFile:    filepath.Join(dir, "daemon.pid"),
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "exit 0"},
	}, discardLog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Run(ctx)
	assert.NoError(t, err)
	_, statErr := os.Stat(w.cfg.PidFile)
	assert.True(t, os.IsNotExist(statErr), "pidfile should be removed once Run returns")
}

func TestRunRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		PidFile:    filepath.Join(dir, "daemon.pid"),
		BinaryPath: "/bin/sh",
		Args:       []string{"-c", "sleep 5"},
	}

	first := New(cfg, discardLog())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- first.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	second := New(cfg, discardLog())
	err := second.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	cancel()
	<-done
}
