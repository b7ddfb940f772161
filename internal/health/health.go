// Package health implements the daemon-wide health monitor (spec.md §4.8):
// every P_health tick, probe the Store, every registered Runtime, and every
// transport listener, folding the results into a single daemon.health
// snapshot. Grounded on the teacher's internal/doctor Report/ReportSummary
// aggregation (per-check status rolled into one overall verdict), adapted
// from a one-shot CLI report into a continuously ticking snapshot, and on
// internal/scheduler's robfig/cron @every idiom for the tick itself.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// Status is the three-valued health of a single component (spec.md §4.8).
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse returns whichever status is further from healthy.
func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

// Component is one probed entry of a Snapshot.
type Component struct {
	Name      string  `json:"name"`
	Status    Status  `json:"status"`
	LatencyMS int64   `json:"latencyMs,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// Snapshot is the full daemon.health result (spec.md §4.8: "overall = worst
// of components, with degraded if any runtime is unreachable but Store and
// transports are fine").
type Snapshot struct {
	Overall    Status       `json:"overall"`
	Components []Component  `json:"components"`
	At         model.Millis `json:"at"`
}

// Store is the narrow slice of internal/store.Store the monitor probes.
type Store interface {
	Ping(ctx context.Context) error
}

// RuntimeRegistry enumerates the live backends to ping.
type RuntimeRegistry interface {
	ListRuntimes(ctx context.Context) ([]model.Runtime, error)
}

// BackendResolver resolves the live backend.Backend for a runtime, the same
// contract internal/backend.Registry and internal/reconciler.Registry use.
type BackendResolver interface {
	Ensure(rt model.Runtime) (backend.Backend, error)
}

// TransportProbe self-checks one transport listener (spec.md §4.8:
// "each transport listener (self-connect)"). Name identifies it in the
// snapshot (e.g. "transport:socket", "transport:http", "transport:ws").
type TransportProbe struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Monitor runs the periodic health probe loop.
type Monitor struct {
	store      Store
	runtimes   RuntimeRegistry
	backends   BackendResolver
	transports []TransportProbe
	events     *eventbus.Bus
	log        *slog.Logger

	mu       sync.RWMutex
	last     Snapshot
	cron     *cron.Cron

	droppedEvents func() uint64
	errorBudget   errorCounter
}

// errorCounter tracks consecutive store write failures observed by the
// daemon outside of Monitor's own probes (spec.md §7: "repeated store
// errors beyond a threshold flip the Health Monitor to unhealthy").
type errorCounter struct {
	mu          sync.Mutex
	consecutive int
}

const storeErrorThreshold = 5

// New builds a Monitor. transports may be nil or empty; each probe is run
// every tick alongside the store and runtime checks.
func New(store Store, runtimes RuntimeRegistry, backends BackendResolver, transports []TransportProbe, events *eventbus.Bus, log *slog.Logger) *Monitor {
	return &Monitor{store: store, runtimes: runtimes, backends: backends, transports: transports, events: events, log: log}
}

// NoteStoreError is called by write paths elsewhere in the daemon on every
// store error; NoteStoreSuccess resets the streak. Together they drive the
// unhealthy threshold independent of the probe tick.
func (m *Monitor) NoteStoreError() {
	m.errorBudget.mu.Lock()
	defer m.errorBudget.mu.Unlock()
	m.errorBudget.consecutive++
}

func (m *Monitor) NoteStoreSuccess() {
	m.errorBudget.mu.Lock()
	defer m.errorBudget.mu.Unlock()
	m.errorBudget.consecutive = 0
}

// Start arms the periodic probe tick.
func (m *Monitor) Start(tick time.Duration) {
	m.cron = cron.New()
	_, _ = m.cron.AddFunc(fmt.Sprintf("@every %s", tick.String()), func() {
		m.Probe(context.Background())
	})
	m.cron.Start()
	m.Probe(context.Background())
}

// Stop halts the probe tick.
func (m *Monitor) Stop() {
	if m.cron != nil {
		ctx := m.cron.Stop()
		<-ctx.Done()
	}
}

// Probe runs one full health pass and stores the resulting Snapshot,
// publishing health.changed when the overall status changes.
func (m *Monitor) Probe(ctx context.Context) Snapshot {
	var components []Component
	overall := StatusHealthy

	storeComp := m.probeStore(ctx)
	components = append(components, storeComp)
	overall = worse(overall, storeComp.Status)

	for _, c := range m.probeRuntimes(ctx) {
		components = append(components, c)
		overall = worse(overall, c.Status)
	}

	for _, c := range m.probeTransports(ctx) {
		components = append(components, c)
		overall = worse(overall, c.Status)
	}

	snap := Snapshot{Overall: overall, Components: components, At: model.NowMillis()}

	m.mu.Lock()
	changed := m.last.Overall != snap.Overall
	m.last = snap
	m.mu.Unlock()

	if changed {
		m.events.Publish(eventbus.Event{Type: eventbus.EventHealthChanged, At: snap.At, Data: snap})
	}
	return snap
}

// Last returns the most recent Snapshot without re-probing, for the
// daemon.health RPC handler's fast path.
func (m *Monitor) Last() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *Monitor) probeStore(ctx context.Context) Component {
	start := time.Now()
	err := m.store.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	m.errorBudget.mu.Lock()
	streak := m.errorBudget.consecutive
	m.errorBudget.mu.Unlock()

	if err != nil {
		return Component{Name: "store", Status: StatusUnhealthy, LatencyMS: latency, Note: err.Error()}
	}
	if streak >= storeErrorThreshold {
		return Component{Name: "store", Status: StatusUnhealthy, LatencyMS: latency,
			Note: fmt.Sprintf("%d consecutive write errors", streak)}
	}
	return Component{Name: "store", Status: StatusHealthy, LatencyMS: latency}
}

func (m *Monitor) probeRuntimes(ctx context.Context) []Component {
	runtimes, err := m.runtimes.ListRuntimes(ctx)
	if err != nil {
		return []Component{{Name: "runtimes", Status: StatusUnhealthy, Note: err.Error()}}
	}
	if m.backends == nil {
		return nil
	}

	out := make([]Component, 0, len(runtimes))
	for _, rt := range runtimes {
		name := fmt.Sprintf("runtime:%s", rt.ID)
		be, err := m.backends.Ensure(rt)
		if err != nil {
			out = append(out, Component{Name: name, Status: StatusDegraded, Note: err.Error()})
			continue
		}
		start := time.Now()
		if err := be.Ping(ctx); err != nil {
			out = append(out, Component{Name: name, Status: StatusDegraded,
				LatencyMS: time.Since(start).Milliseconds(), Note: err.Error()})
			continue
		}
		out = append(out, Component{Name: name, Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()})
	}
	return out
}

func (m *Monitor) probeTransports(ctx context.Context) []Component {
	out := make([]Component, 0, len(m.transports))
	for _, tp := range m.transports {
		start := time.Now()
		if err := tp.Probe(ctx); err != nil {
			out = append(out, Component{Name: tp.Name, Status: StatusUnhealthy,
				LatencyMS: time.Since(start).Milliseconds(), Note: err.Error()})
			continue
		}
		out = append(out, Component{Name: tp.Name, Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()})
	}
	return out
}
