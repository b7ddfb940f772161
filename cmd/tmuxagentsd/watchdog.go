package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/logging"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/watchdog"
)

var watchdogForeground bool

var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Supervise the daemon binary, restarting it on crash with backoff",
	RunE:  runWatchdog,
}

func init() {
	watchdogCmd.Flags().BoolVar(&watchdogForeground, "foreground", false, "stream the daemon's stdio to the watchdog's own")
	rootCmd.AddCommand(watchdogCmd)
}

func runWatchdog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, lf, err := logging.New(cfg.Daemon.LogFile, "watchdog", cfg.Daemon.LogMaxSizeMB, cfg.Daemon.LogKeep)
	if err != nil {
		return err
	}
	defer lf.Close()

	self, err := os.Executable()
	if err != nil {
		return err
	}

	w := watchdog.New(watchdog.Config{
		PidFile:    cfg.Daemon.PidFile,
		BinaryPath: self,
		Args:       []string{"run", "--config", configPath},
		Foreground: watchdogForeground,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return w.Run(ctx)
}
