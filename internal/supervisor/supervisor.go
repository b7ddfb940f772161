// Package supervisor owns the per-agent runtime state and the
// heartbeat/auto-pilot core loop (spec.md §4.2), grounded on the teacher's
// internal/agent package: a runtime-aware Implementation driving sessions
// through a Sessions abstraction, generalized here from gastown's
// mayor/witness/crew role addressing to plain per-task Agent loops, and on
// internal/nudge for the cooperative "paste, don't interrupt" heartbeat
// idiom.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/backend"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/config"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
	"github.com/super-agent-ai/tmux-agents-sub006/internal/sentinel"
)

// DefaultRuntimeID is the well-known runtime id a fresh daemon registers for
// its local multiplexer, used when neither the task nor its lane name a
// runtime (spec.md §4.2 step 2: "local-default").
const DefaultRuntimeID = "local-default"

// NIdle is the number of consecutive unchanged captures before an Agent is
// marked idle (spec.md §4.2: "On capture returning unchanged content across
// N_idle ticks").
const NIdle = 5

// Supervisor owns every live Agent's core loop.
type Supervisor struct {
	store     Store
	events    *eventbus.Bus
	registry  Registry
	providers map[string]config.ProviderConfig
	log       *slog.Logger

	captureTick  time.Duration
	heartbeatTTL time.Duration

	mu     sync.Mutex
	agents map[string]*runningAgent // task id -> loop state
}

type runningAgent struct {
	agent  model.Agent
	cancel context.CancelFunc
	mu     sync.Mutex // serializes mux invocations for this pane (spec.md §5)
}

// New builds a Supervisor.
func New(store Store, events *eventbus.Bus, registry Registry, providers map[string]config.ProviderConfig, captureTick, heartbeatTTL time.Duration, log *slog.Logger) *Supervisor {
	return &Supervisor{
		store:        store,
		events:       events,
		registry:     registry,
		providers:    providers,
		captureTick:  captureTick,
		heartbeatTTL: heartbeatTTL,
		log:          log,
		agents:       make(map[string]*runningAgent),
	}
}

// Spawn resolves effective toggles/runtime, spawns the backend session,
// sends the launch prompt, and starts the core loop for task t. It returns
// once the Agent has transitioned to "working" (spawn complete), the loop
// itself keeps running in the background.
func (s *Supervisor) Spawn(ctx context.Context, t model.Task, lane model.Lane) (model.Agent, error) {
	resolved := model.StampInherited(t.Overrides, lane.DefaultToggles)
	t.Overrides = resolved

	runtimeID := t.RuntimeID
	if runtimeID == nil || *runtimeID == "" {
		runtimeID = lane.RuntimeID
	}
	rtID := DefaultRuntimeID
	if runtimeID != nil && *runtimeID != "" {
		rtID = *runtimeID
	}
	rt, err := s.store.GetRuntime(ctx, rtID)
	if err != nil {
		return model.Agent{}, err
	}
	be, err := s.registry.Ensure(rt)
	if err != nil {
		return model.Agent{}, apperr.Wrap(apperr.BackendUnreachable, err, "resolving backend")
	}

	provider := t.Provider
	if provider == "" {
		provider = lane.Provider
	}
	pcfg := s.providers[provider]

	label := model.Label{
		Managed:     true,
		AgentID:     t.ID,
		SessionName: "gt-" + t.ID,
		Provider:    provider,
		CreatedAt:   model.NowMillis(),
	}
	handle, err := be.Spawn(ctx, backend.Spec{
		SessionName: label.SessionName,
		WorkingDir:  t.Workdir,
		Command:     pcfg.Command,
		Image:       rt.Image,
		Namespace:   rt.Namespace,
		Host:        rt.Host,
		Label:       label,
	})
	if err != nil {
		return model.Agent{}, apperr.Wrap(apperr.BackendFailure, err, "spawning agent session")
	}

	if pcfg.WarmupMS > 0 {
		select {
		case <-ctx.Done():
			return model.Agent{}, ctx.Err()
		case <-time.After(time.Duration(pcfg.WarmupMS) * time.Millisecond):
		}
	}
	prompt := buildLaunchPrompt(t, lane)
	if err := be.Mux(handle).Paste(ctx, prompt); err != nil {
		_ = be.Kill(ctx, handle)
		return model.Agent{}, apperr.Wrap(apperr.BackendFailure, err, "pasting launch prompt")
	}

	agent := model.Agent{
		ID:             t.ID,
		RuntimeID:      rt.ID,
		Handle:         handle,
		State:          model.AgentWorking,
		LastActivityAt: model.NowMillis(),
	}
	if err := s.store.PutAgentCheckpoint(ctx, agent); err != nil {
		return model.Agent{}, err
	}
	t.AssignedAgentID = &t.ID
	if err := s.store.PutTask(ctx, t); err != nil {
		return model.Agent{}, err
	}

	s.startLoop(agent, be, pcfg)
	s.events.PublishTask(eventbus.EventAgentSpawned, t.ID, agent)
	return agent, nil
}

func buildLaunchPrompt(t model.Task, lane model.Lane) string {
	return fmt.Sprintf(
		"You are agent %s working on task %q.\n\n%s\n\n"+
			"Role: %s\n%s\n\n"+
			"When fully done, end your final message with <promise>Done</promise>.\n"+
			"When asked for a progress update, reply with a single "+
			"<task-progress>{\"phase\":...,\"status\":...,\"files\":[...]}</task-progress> marker.\n",
		t.ID, t.Title, lane.ContextInstructions, t.Role, t.Description,
	)
}

// Resume rebinds an already-live backend session to a fresh core loop,
// called by the Reconciler after confirming backend.Exists (spec.md §4.5).
func (s *Supervisor) Resume(agent model.Agent, be backend.Backend, provider string) {
	s.startLoop(agent, be, s.providers[provider])
	s.events.PublishTask(eventbus.EventAgentSpawned, agent.ID, agent)
}

func (s *Supervisor) startLoop(agent model.Agent, be backend.Backend, pcfg config.ProviderConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	ra := &runningAgent{agent: agent, cancel: cancel}

	s.mu.Lock()
	s.agents[agent.ID] = ra
	s.mu.Unlock()

	go s.runLoop(ctx, ra, be, pcfg)
}

// Stop requests cancellation of task id's core loop (spec.md §4.2:
// "task.stop ... sets a cancel flag").
func (s *Supervisor) Stop(taskID string) {
	s.mu.Lock()
	ra, ok := s.agents[taskID]
	s.mu.Unlock()
	if ok {
		ra.cancel()
	}
}

// Get returns the in-memory Agent state for a live task, if any.
func (s *Supervisor) Get(taskID string) (model.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, ok := s.agents[taskID]
	if !ok {
		return model.Agent{}, false
	}
	ra.mu.Lock()
	defer ra.mu.Unlock()
	return ra.agent, true
}

func (s *Supervisor) forget(taskID string) {
	s.mu.Lock()
	delete(s.agents, taskID)
	s.mu.Unlock()
}

// runLoop is the core loop from spec.md §4.2, one goroutine per live Agent.
func (s *Supervisor) runLoop(ctx context.Context, ra *runningAgent, be backend.Backend, pcfg config.ProviderConfig) {
	defer s.forget(ra.agent.ID)

	ticker := time.NewTicker(s.captureTick)
	defer ticker.Stop()

	var lastCapture string
	var idleTicks int
	lastActivity := time.Now()

	heartbeatTTL := s.heartbeatTTL
	if pcfg.HeartbeatMS > 0 {
		heartbeatTTL = time.Duration(pcfg.HeartbeatMS) * time.Millisecond
	}
	heartbeatPrompt := defaultHeartbeatPrompt
	if pcfg.HeartbeatPrompt != "" {
		heartbeatPrompt = pcfg.HeartbeatPrompt
	}

	for {
		select {
		case <-ctx.Done():
			s.terminate(ra, be)
			return
		case <-ticker.C:
		}

		taskCtx, taskCancel := context.WithTimeout(context.Background(), backend.ExistsTimeout)
		exists, err := be.Exists(taskCtx, ra.agent.Handle)
		taskCancel()
		if err != nil || !exists {
			s.markLost(ra)
			return
		}

		captureCtx, captureCancel := context.WithTimeout(context.Background(), backend.ExecTimeout)
		ra.mu.Lock()
		text, err := be.Mux(ra.agent.Handle).CapturePane(captureCtx, 500)
		ra.mu.Unlock()
		captureCancel()
		if err != nil {
			s.markLost(ra)
			return
		}

		changed := text != lastCapture
		lastCapture = text
		if changed {
			idleTicks = 0
			lastActivity = time.Now()
		} else {
			idleTicks++
		}

		if sentinel.HasCompletionSentinel(text) {
			s.completeLocked(ra, be, text, s.resolvedAutoClose(ra))
			return
		}

		if progress, ok := sentinel.ParseProgress(text); ok {
			s.applyProgress(ra, progress)
		}

		if sentinel.MatchesAny(text, pcfg.ConfirmPrompts, 4096) && s.resolvedAutoPilot(ra) {
			ra.mu.Lock()
			_ = be.Mux(ra.agent.Handle).SendKeys(context.Background(), "y")
			ra.mu.Unlock()
			s.events.PublishTask(eventbus.EventAgentStateChanged, ra.agent.ID, "auto-responded")
		}

		if idleTicks >= NIdle {
			s.setState(ra, model.AgentIdle)
		}

		if time.Since(lastActivity) >= heartbeatTTL {
			ra.mu.Lock()
			_ = be.Mux(ra.agent.Handle).Paste(context.Background(), heartbeatPrompt)
			ra.mu.Unlock()
			lastActivity = time.Now()
		}
	}
}

// defaultHeartbeatPrompt is used when a provider's config leaves
// heartbeat_prompt unset (SPEC_FULL.md §D.3: wording is per-provider config,
// never hard-coded beyond this fallback).
const defaultHeartbeatPrompt = "Please reply with a single <task-progress>{\"phase\":...,\"status\":...,\"files\":[...]}</task-progress> marker summarizing current progress."

// resolvedAutoClose and resolvedAutoPilot re-read the Task and its Lane on
// every check and resolve the toggle through model.Effective, so a lane edit
// made after Spawn applies to any toggle StampInherited left as inherit.
func (s *Supervisor) resolvedAutoClose(ra *runningAgent) bool {
	ctx := context.Background()
	t, err := s.store.GetTask(ctx, ra.agent.ID)
	if err != nil {
		return false
	}
	var lane model.Lane
	if t.LaneID != nil {
		lane, _ = s.store.GetLane(ctx, *t.LaneID)
	}
	return model.Effective(t.Overrides, lane.DefaultToggles, model.ToggleAutoClose)
}

func (s *Supervisor) resolvedAutoPilot(ra *runningAgent) bool {
	ctx := context.Background()
	t, err := s.store.GetTask(ctx, ra.agent.ID)
	if err != nil {
		return false
	}
	var lane model.Lane
	if t.LaneID != nil {
		lane, _ = s.store.GetLane(ctx, *t.LaneID)
	}
	return model.Effective(t.Overrides, lane.DefaultToggles, model.ToggleAutoPilot)
}

func (s *Supervisor) setState(ra *runningAgent, state model.AgentState) {
	ra.mu.Lock()
	ra.agent.State = state
	agent := ra.agent
	ra.mu.Unlock()
	ctx := context.Background()
	_ = s.store.PutAgentCheckpoint(ctx, agent)
	s.events.PublishTask(eventbus.EventAgentStateChanged, agent.ID, state)
}

func (s *Supervisor) applyProgress(ra *runningAgent, p model.Progress) {
	ra.mu.Lock()
	ra.agent.LastProgress = &p
	ra.agent.LastActivityAt = model.NowMillis()
	agent := ra.agent
	ra.mu.Unlock()

	ctx := context.Background()
	t, err := s.store.GetTask(ctx, agent.ID)
	if err == nil {
		t.Output = fmt.Sprintf("[%s] %s", p.Phase, p.Status)
		_ = s.store.PutTask(ctx, t)
	}
	_ = s.store.PutAgentCheckpoint(ctx, agent)
	s.events.PublishTask(eventbus.EventAgentProgress, agent.ID, p)
}

// completeLocked transitions an Agent to completed on a recognised
// completion sentinel. autoClose controls whether the backend session is
// actually killed (SPEC_FULL.md §D.1): when false, the pane is left
// attached for the user to review and listManaged will keep surfacing it
// until an explicit agent.kill or task.delete, but the task still reaches
// done and the Agent still reaches completed either way.
func (s *Supervisor) completeLocked(ra *runningAgent, be backend.Backend, output string, autoClose bool) {
	ra.mu.Lock()
	ra.agent.State = model.AgentCompleted
	agent := ra.agent
	ra.mu.Unlock()

	ctx := context.Background()
	if autoClose {
		killCtx, cancel := context.WithTimeout(ctx, backend.KillTimeout)
		_ = be.Kill(killCtx, agent.Handle)
		cancel()
	}

	t, err := s.store.GetTask(ctx, agent.ID)
	if err == nil {
		t.Column = model.ColumnDone
		t.Output = output
		now := model.NowMillis()
		t.CompletedAt = &now
		_ = s.store.PutTask(ctx, t)
	}
	_ = s.store.DeleteAgentCheckpoint(ctx, agent.ID)

	s.events.PublishTask(eventbus.EventTaskUpdated, agent.ID, "completed")
	s.events.PublishTask(eventbus.EventAgentStateChanged, agent.ID, model.AgentCompleted)
}

func (s *Supervisor) markLost(ra *runningAgent) {
	ra.mu.Lock()
	ra.agent.State = model.AgentLost
	agent := ra.agent
	ra.mu.Unlock()

	ctx := context.Background()
	_ = s.store.PutAgentCheckpoint(ctx, agent)

	t, err := s.store.GetTask(ctx, agent.ID)
	if err == nil && t.Column == model.ColumnDoing {
		t.Column = model.ColumnTodo
		t.AssignedAgentID = nil
		_ = s.store.PutTask(ctx, t)
	}
	s.events.PublishTask(eventbus.EventAgentLost, agent.ID, nil)
	s.forget(agent.ID)
}

// terminate handles an explicit task.stop cancellation: kill the session,
// transition terminated, and demote the task back to todo unless it already
// carries an explicit target column (spec.md §4.2).
func (s *Supervisor) terminate(ra *runningAgent, be backend.Backend) {
	ra.mu.Lock()
	ra.agent.State = model.AgentTerminated
	agent := ra.agent
	ra.mu.Unlock()

	ctx := context.Background()
	killCtx, cancel := context.WithTimeout(ctx, backend.KillTimeout)
	_ = be.Kill(killCtx, agent.Handle)
	cancel()
	_ = s.store.DeleteAgentCheckpoint(ctx, agent.ID)

	t, err := s.store.GetTask(ctx, agent.ID)
	if err == nil && t.Column == model.ColumnDoing {
		t.Column = model.ColumnTodo
		t.AssignedAgentID = nil
		_ = s.store.PutTask(ctx, t)
	}
	s.events.PublishTask(eventbus.EventAgentStateChanged, agent.ID, model.AgentTerminated)
}
