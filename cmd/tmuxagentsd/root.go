package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tmuxagentsd",
	Short: "Orchestration daemon for AI coding agents running in tmux, SSH, containers, and pods",
	Long: `tmuxagentsd supervises AI coding agents across heterogeneous
backends, dispatching work from a kanban task board and keeping each
agent nudged with a periodic heartbeat until it finishes.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to the TOML config file")
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tmux-agents.toml"
	}
	return home + "/.tmux-agents/config.toml"
}

// loadConfig reads configPath, falling back to Default() if the file is
// absent (a fresh install has no config file yet).
func loadConfig() (config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading %s: %w", configPath, err)
	}
	return cfg, nil
}
