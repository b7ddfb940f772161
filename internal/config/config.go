// Package config loads the daemon's TOML configuration file, grounded on
// the teacher's internal/tmuxinator-style project config
// (BurntSushi/toml-decoded struct with defaults applied after decode).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level daemon configuration (SPEC_FULL.md §A.3).
type Config struct {
	Daemon    DaemonConfig              `toml:"daemon"`
	Runtimes  []RuntimeConfig           `toml:"runtimes"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	DataDir        string `toml:"data_dir"`
	SocketPath     string `toml:"socket_path"`
	HTTPAddr       string `toml:"http_addr"`
	WSAddr         string `toml:"ws_addr"`
	PidFile        string `toml:"pid_file"`
	LogFile        string `toml:"log_file"`
	LogMaxSizeMB   int    `toml:"log_max_size_mb"`
	LogKeep        int    `toml:"log_keep"`
	CaptureTickMS  int    `toml:"capture_tick_ms"`  // P_capture, spec.md §4.2
	HeartbeatMS    int    `toml:"heartbeat_ms"`     // P_heartbeat, spec.md §4.2
	SchedulerTickMS int   `toml:"scheduler_tick_ms"` // P_sched, spec.md §4.3
	HealthTickMS   int    `toml:"health_tick_ms"`    // spec.md §4.8
	StaleSweepMS   int    `toml:"stale_sweep_ms"`    // SPEC_FULL.md §C.2
	// OrphanPolicy controls what happens to a listManaged session with no
	// matching task row (spec.md §9 open question 2, resolved in
	// SPEC_FULL.md §D.2): "kill" destroys it, "adopt" creates a review-column
	// placeholder Task the user can pick up with task.import.
	OrphanPolicy string `toml:"orphan_policy" validate:"omitempty,oneof=kill adopt"`
	// BindAddr, when set, overrides the loopback-only default for every
	// transport listener (spec.md §6: "binds to loopback by default").
	BindAddr string `toml:"bind_addr"`
}

// RuntimeConfig is one configured Runtime, tagged by Type. Only the fields
// relevant to Type are meaningful; the rest are zero.
type RuntimeConfig struct {
	ID         string `toml:"id"`
	Type       string `toml:"type" validate:"required,oneof=local-mux remote-shell container pod"`
	Host       string `toml:"host,omitempty"`
	Port       int    `toml:"port,omitempty"`
	User       string `toml:"user,omitempty"`
	IdentityFile string `toml:"identity_file,omitempty"`
	Image      string `toml:"image,omitempty"`
	Namespace  string `toml:"namespace,omitempty"`
	KubeConfig string `toml:"kubeconfig,omitempty"`
	PodSpec    string `toml:"pod_spec,omitempty"`
}

// ProviderConfig describes one AI coding agent CLI provider (spec.md §4.2:
// "provider-specific confirmation/idle prompt shapes"). HeartbeatPrompt and
// HeartbeatMS let each provider carry its own nudge wording/frequency
// (SPEC_FULL.md §D.3) rather than a daemon-wide hard-coded string; a zero
// HeartbeatMS falls back to DaemonConfig.HeartbeatMS.
type ProviderConfig struct {
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	WarmupMS        int      `toml:"warmup_ms"`
	ConfirmPrompts  []string `toml:"confirm_prompts"`
	IdlePrompts     []string `toml:"idle_prompts"`
	HeartbeatPrompt string   `toml:"heartbeat_prompt"`
	HeartbeatMS     int      `toml:"heartbeat_ms"`
}

// Default returns the configuration applied when a field is left unset in
// the TOML file, mirroring the teacher's post-decode defaulting pattern.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			DataDir:         "$HOME/.tmux-agents",
			SocketPath:      "$HOME/.tmux-agents/daemon.sock",
			HTTPAddr:        "127.0.0.1:3456",
			WSAddr:          "127.0.0.1:3457",
			PidFile:         "$HOME/.tmux-agents/daemon.pid",
			LogFile:         "$HOME/.tmux-agents/daemon.log",
			LogMaxSizeMB:    50,
			LogKeep:         5,
			CaptureTickMS:   2000,
			HeartbeatMS:     300000,
			SchedulerTickMS: 1000,
			HealthTickMS:    10000,
			StaleSweepMS:    60000,
			OrphanPolicy:    "kill",
			BindAddr:        "127.0.0.1",
		},
		Providers: map[string]ProviderConfig{},
	}
}

// Load reads and decodes the TOML file at path over the Default()
// configuration, expanding $HOME/env references in path-shaped fields the
// way the teacher's config loader does via os.ExpandEnv.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Daemon.LogMaxSizeMB == 0 {
		c.Daemon.LogMaxSizeMB = def.Daemon.LogMaxSizeMB
	}
	if c.Daemon.LogKeep == 0 {
		c.Daemon.LogKeep = def.Daemon.LogKeep
	}
	if c.Daemon.CaptureTickMS == 0 {
		c.Daemon.CaptureTickMS = def.Daemon.CaptureTickMS
	}
	if c.Daemon.HeartbeatMS == 0 {
		c.Daemon.HeartbeatMS = def.Daemon.HeartbeatMS
	}
	if c.Daemon.SchedulerTickMS == 0 {
		c.Daemon.SchedulerTickMS = def.Daemon.SchedulerTickMS
	}
	if c.Daemon.HealthTickMS == 0 {
		c.Daemon.HealthTickMS = def.Daemon.HealthTickMS
	}
	if c.Daemon.StaleSweepMS == 0 {
		c.Daemon.StaleSweepMS = def.Daemon.StaleSweepMS
	}
	if c.Daemon.OrphanPolicy == "" {
		c.Daemon.OrphanPolicy = def.Daemon.OrphanPolicy
	}
	if c.Daemon.BindAddr == "" {
		c.Daemon.BindAddr = def.Daemon.BindAddr
	}
	if c.Daemon.HTTPAddr == "" {
		c.Daemon.HTTPAddr = def.Daemon.HTTPAddr
	}
	if c.Daemon.WSAddr == "" {
		c.Daemon.WSAddr = def.Daemon.WSAddr
	}
	if c.Daemon.SocketPath == "" {
		c.Daemon.SocketPath = def.Daemon.SocketPath
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = def.Daemon.DataDir
	}
	if c.Daemon.PidFile == "" {
		c.Daemon.PidFile = def.Daemon.PidFile
	}
	if c.Daemon.LogFile == "" {
		c.Daemon.LogFile = def.Daemon.LogFile
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
}

func (c *Config) expandPaths() {
	c.Daemon.DataDir = expand(c.Daemon.DataDir)
	c.Daemon.SocketPath = expand(c.Daemon.SocketPath)
	c.Daemon.PidFile = expand(c.Daemon.PidFile)
	c.Daemon.LogFile = expand(c.Daemon.LogFile)
	for i := range c.Runtimes {
		c.Runtimes[i].IdentityFile = expand(c.Runtimes[i].IdentityFile)
		c.Runtimes[i].KubeConfig = expand(c.Runtimes[i].KubeConfig)
		c.Runtimes[i].PodSpec = expand(c.Runtimes[i].PodSpec)
	}
}

func expand(p string) string {
	if p == "" {
		return p
	}
	return filepath.Clean(os.ExpandEnv(p))
}
