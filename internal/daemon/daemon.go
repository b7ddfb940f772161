// Package daemon wires every subsystem package in this module into one
// running process (spec.md §4: store, event bus, backend registry,
// supervisor, scheduler, pipeline engine, reconciler, health monitor, RPC
// router, and the three transport listeners). Grounded on the teacher's
// internal/daemon.Daemon, which does the same job for gastown's mayor
// process: construct every collaborator once at boot, start their
// background loops, and block until asked to stop.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/client"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/container"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/localmux"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/pod"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend/remoteshell"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/health"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/logging"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/pipeline"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/reconciler"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc/transport/httptransport"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc/transport/localsocket"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/rpc/transport/wstransport"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/scheduler"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/store"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/supervisor"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Daemon owns every subsystem's lifetime for one process.
type Daemon struct {
	cfg     config.Config
	cfgPath string
	log     *slog.Logger
	lf      io.Closer

	store      *store.Store
	events     *eventbus.Bus
	registry   *backend.Registry
	supervisor *supervisor.Supervisor
	scheduler  *scheduler.Scheduler
	pipelines  *pipeline.Engine
	reconciler *reconciler.Reconciler
	health     *health.Monitor
	router     *rpc.Router

	socket *localsocket.Server
	http   *httptransport.Server
	ws     *wstransport.Server

	startedAt time.Time
}

// New constructs every subsystem but starts nothing. ctx is used only for
// the initial store open and runtime seeding. cfgPath is kept only
// so daemon.reload (spec.md §6) can re-read the same file later.
func New(ctx context.Context, cfgPath string, cfg config.Config) (*Daemon, error) {
	log, lf, err := logging.New(cfg.Daemon.LogFile, "daemon", cfg.Daemon.LogMaxSizeMB, cfg.Daemon.LogKeep)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	st, err := store.Open(ctx, cfg.Daemon.DataDir+"/daemon.db")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	events := eventbus.New()
	registry := backend.NewRegistry()

	runtimeCfgs := make(map[string]config.RuntimeConfig, len(cfg.Runtimes))
	for _, rc := range cfg.Runtimes {
		runtimeCfgs[rc.ID] = rc
	}
	registerFactories(registry, runtimeCfgs)

	if err := seedRuntimes(ctx, st, cfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	sup := supervisor.New(
		st, events, registry, cfg.Providers,
		time.Duration(cfg.Daemon.CaptureTickMS)*time.Millisecond,
		time.Duration(cfg.Daemon.HeartbeatMS)*time.Millisecond,
		log,
	)

	sched := scheduler.New(st, sup, events, log)

	pipelines, err := pipeline.New(st, events, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("building pipeline engine: %w", err)
	}

	recon := reconciler.New(st, sup, registry, events, reconciler.OrphanPolicy(cfg.Daemon.OrphanPolicy), log)

	d := &Daemon{
		cfg:        cfg,
		cfgPath:    cfgPath,
		log:        log,
		lf:         lf,
		store:      st,
		events:     events,
		registry:   registry,
		supervisor: sup,
		scheduler:  sched,
		pipelines:  pipelines,
		reconciler: recon,
		startedAt:  time.Now(),
	}

	// Health probes and the router both need the transport servers, and the
	// transport servers need the router: break the cycle with closures that
	// forward to d.socket/d.http/d.ws once New assigns them below.
	d.health = health.New(st, st, registry, []health.TransportProbe{
		{Name: "transport:socket", Probe: func(ctx context.Context) error { return d.socket.Probe(ctx) }},
		{Name: "transport:http", Probe: func(ctx context.Context) error { return d.http.Probe(ctx) }},
		{Name: "transport:ws", Probe: func(ctx context.Context) error { return d.ws.Probe(ctx) }},
	}, events, log)

	d.router = rpc.NewRouter(rpc.Deps{
		Store:      st,
		Scheduler:  sched,
		Supervisor: sup,
		Pipelines:  pipelines,
		Backends:   registry,
		Reconciler: recon,
		Health:     d.health,
		Events:     events,
		Config:     &d.cfg,
		Log:        log,
		Version:    Version,
		StartedAt:  d.startedAt.Unix(),
		ReloadFn:   d.reload,
		ShutdownFn: func() {},
	})

	d.socket = localsocket.New(cfg.Daemon.SocketPath, d.router, log)
	d.http = httptransport.New(cfg.Daemon.HTTPAddr, d.router, events, log)
	d.ws = wstransport.New(cfg.Daemon.WSAddr, d.router, events, log)

	return d, nil
}

// registerFactories installs one backend.Factory per model.RuntimeType,
// each closing over runtimeCfgs to recover the TOML-only fields
// model.Runtime itself doesn't persist (port, user, identity file,
// kubeconfig, pod spec template).
func registerFactories(registry *backend.Registry, runtimeCfgs map[string]config.RuntimeConfig) {
	warmup := func(rt model.Runtime) time.Duration { return 2 * time.Second }

	registry.RegisterFactory(model.RuntimeLocalMux, func(rt model.Runtime) (backend.Backend, error) {
		return localmux.New(warmup(rt)), nil
	})

	registry.RegisterFactory(model.RuntimeRemoteShell, func(rt model.Runtime) (backend.Backend, error) {
		rc := runtimeCfgs[rt.ID]
		cfg := remoteshell.Config{
			Host:         rt.Host,
			Port:         rc.Port,
			User:         rc.User,
			IdentityFile: rc.IdentityFile,
		}
		return remoteshell.New(cfg, warmup(rt)), nil
	})

	registry.RegisterFactory(model.RuntimeContainer, func(rt model.Runtime) (backend.Backend, error) {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("building docker client for runtime %s: %w", rt.ID, err)
		}
		return container.New(cli, warmup(rt)), nil
	})

	registry.RegisterFactory(model.RuntimePod, func(rt model.Runtime) (backend.Backend, error) {
		rc := runtimeCfgs[rt.ID]
		cfg := pod.Config{
			Namespace:  rt.Namespace,
			KubeConfig: rc.KubeConfig,
			PodSpec:    rc.PodSpec,
		}
		return pod.New(cfg), nil
	})
}

// seedRuntimes registers the built-in local-default runtime (spec.md §4.2
// step 2) and every runtime declared in the config file, leaving any
// runtime registered later via runtime.add untouched.
func seedRuntimes(ctx context.Context, st *store.Store, cfg config.Config) error {
	if _, err := st.GetRuntime(ctx, supervisor.DefaultRuntimeID); err != nil {
		def := model.Runtime{
			ID:        supervisor.DefaultRuntimeID,
			Type:      model.RuntimeLocalMux,
			Reachable: true,
			CreatedAt: model.NowMillis(),
		}
		if err := st.PutRuntime(ctx, def); err != nil {
			return fmt.Errorf("seeding default runtime: %w", err)
		}
	}

	for _, rc := range cfg.Runtimes {
		if _, err := st.GetRuntime(ctx, rc.ID); err == nil {
			continue
		}
		rt := model.Runtime{
			ID:        rc.ID,
			Type:      model.RuntimeType(rc.Type),
			Host:      rc.Host,
			Image:     rc.Image,
			Namespace: rc.Namespace,
			Reachable: true,
			CreatedAt: model.NowMillis(),
		}
		if err := st.PutRuntime(ctx, rt); err != nil {
			return fmt.Errorf("seeding configured runtime %s: %w", rc.ID, err)
		}
	}
	return nil
}

// Run starts every background loop and blocks until ctx is cancelled or a
// transport listener fails. It always attempts a graceful Close before
// returning.
func (d *Daemon) Run(ctx context.Context) error {
	report, err := d.reconciler.Reconcile(ctx)
	if err != nil {
		d.log.Warn("startup reconciliation failed", "error", err)
	} else {
		d.log.Info("startup reconciliation complete",
			"reconnected", len(report.Reconnected),
			"lost", len(report.Lost),
			"orphaned", len(report.Orphaned),
		)
	}

	d.scheduler.Start(time.Duration(d.cfg.Daemon.SchedulerTickMS) * time.Millisecond)
	d.health.Start(time.Duration(d.cfg.Daemon.HealthTickMS) * time.Millisecond)

	errCh := make(chan error, 3)
	go func() { errCh <- d.socket.ListenAndServe() }()
	go func() { errCh <- d.http.ListenAndServe() }()
	go func() { errCh <- d.ws.ListenAndServe() }()

	d.log.Info("daemon started",
		"socket", d.cfg.Daemon.SocketPath,
		"http_addr", d.cfg.Daemon.HTTPAddr,
		"ws_addr", d.cfg.Daemon.WSAddr,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		d.log.Error("transport listener exited unexpectedly", "error", runErr)
	}

	if err := d.Close(); err != nil {
		d.log.Warn("error during shutdown", "error", err)
	}
	return runErr
}

// reload re-reads the config file and registers any runtime added to it
// since boot, the handler behind daemon.reload (spec.md §6). It does not
// replace already-constructed backends or transports; only future Ensure
// calls see a runtime added this way.
func (d *Daemon) reload() (config.Config, error) {
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("reloading config %s: %w", d.cfgPath, err)
	}
	if err := seedRuntimes(context.Background(), d.store, cfg); err != nil {
		return config.Config{}, err
	}
	d.cfg.Runtimes = cfg.Runtimes
	d.cfg.Providers = cfg.Providers
	return cfg, nil
}

// Close stops every background loop and transport listener, and closes the
// store. It is safe to call more than once.
func (d *Daemon) Close() error {
	d.scheduler.Stop()
	d.health.Stop()

	_ = d.socket.Close()
	_ = d.http.Close()
	_ = d.ws.Close()

	err := d.store.Close()
	if d.lf != nil {
		_ = d.lf.Close()
	}
	return err
}

// Store exposes the underlying store for CLI subcommands (doctor, backup)
// that need direct access without going through RPC.
func (d *Daemon) Store() *store.Store { return d.store }
