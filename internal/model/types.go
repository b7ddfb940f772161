// Package model defines the daemon's durable domain types: Runtime, Lane,
// Task, Agent, PipelineDefinition, PipelineRun and the tri-state Toggles
// bundle, per spec.md §3.
package model

import "time"

// Millis is a timestamp expressed as milliseconds since the Unix epoch, the
// wire-level timestamp representation used throughout spec.md §3.
type Millis int64

// NowMillis returns the current time as Millis.
func NowMillis() Millis { return Millis(time.Now().UnixMilli()) }

// Time converts a Millis back to a time.Time in the local zone.
func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

// RuntimeType identifies a backend kind.
type RuntimeType string

const (
	RuntimeLocalMux    RuntimeType = "local-mux"
	RuntimeRemoteShell RuntimeType = "remote-shell"
	RuntimeContainer   RuntimeType = "container"
	RuntimePod         RuntimeType = "pod"
)

// UnassignedLaneID is the synthetic lane id tasks with no lane, or a
// dangling laneId, are grouped under (spec.md §4.3).
const UnassignedLaneID = "__unassigned__"

// Runtime is a named backend instance (spec.md §3).
type Runtime struct {
	ID         string      `db:"id" json:"id"`
	Type       RuntimeType `db:"type" json:"type"`
	Host       string      `db:"host" json:"host,omitempty"`
	Image      string      `db:"image" json:"image,omitempty"`
	Namespace  string      `db:"namespace" json:"namespace,omitempty"`
	Reachable  bool        `db:"reachable" json:"reachable"`
	CreatedAt  Millis      `db:"created_at" json:"createdAt"`
}

// Column is the kanban state of a Task (spec.md §3, §4.3).
type Column string

const (
	ColumnBacklog Column = "backlog"
	ColumnTodo    Column = "todo"
	ColumnDoing   Column = "doing"
	ColumnReview  Column = "review"
	ColumnDone    Column = "done"
)

// Priority is a task's scheduling priority.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a numeric ordering for priority-desc sorting (higher first).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Lane is the scheduling swim-lane unit (spec.md §3).
type Lane struct {
	ID                  string  `db:"id" json:"id"`
	Name                string  `db:"name" json:"name"`
	WorkingDirectory    string  `db:"working_directory" json:"workingDirectory"`
	Provider            string  `db:"provider" json:"provider"`
	RuntimeID           *string `db:"runtime_id" json:"runtimeId,omitempty"`
	WipLimit            int     `db:"wip_limit" json:"wipLimit"` // < 0 means unlimited (∞)
	Priority            int     `db:"priority" json:"priority"`
	ContextInstructions string  `db:"context_instructions" json:"contextInstructions,omitempty"`
	MemoryFileID        *string `db:"memory_file_id" json:"memoryFileId,omitempty"`
	DefaultToggles      Toggles `json:"defaultToggles"`
	CreatedAt           Millis  `db:"created_at" json:"createdAt"`
}

// WipUnlimited is the sentinel WipLimit value meaning ∞.
const WipUnlimited = -1

// Task is the unit of work; when running, it is an agent (spec.md §3).
type Task struct {
	ID               string    `db:"id" json:"id"`
	Title            string    `db:"title" json:"title"`
	Description      string    `db:"description" json:"description"`
	Column           Column    `db:"column" json:"column"`
	Priority         Priority  `db:"priority" json:"priority"`
	Role             string    `db:"role" json:"role"`
	LaneID           *string   `db:"lane_id" json:"laneId,omitempty"`
	DependsOn        []string  `json:"dependsOn"`
	Tags             []string  `json:"tags"`
	AssignedAgentID  *string   `db:"assigned_agent_id" json:"assignedAgentId,omitempty"`
	Overrides        Toggles   `json:"overrides"`
	Workdir          string    `db:"workdir" json:"workdir,omitempty"`
	Provider         string    `db:"provider" json:"provider,omitempty"`
	Model            string    `db:"model" json:"model,omitempty"`
	RuntimeID        *string   `db:"runtime_id" json:"runtimeId,omitempty"`
	Output           string    `db:"output" json:"output"`
	Cancelled        bool      `db:"cancelled" json:"cancelled"`
	CreatedAt        Millis    `db:"created_at" json:"createdAt"`
	StartedAt        *Millis   `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt      *Millis   `db:"completed_at" json:"completedAt,omitempty"`
}

// EffectiveLaneID returns the lane id to group this task under, falling back
// to the synthetic unassigned bucket for a missing or dangling lane.
func (t *Task) EffectiveLaneID() string {
	if t.LaneID == nil || *t.LaneID == "" {
		return UnassignedLaneID
	}
	return *t.LaneID
}

// AgentState is the run-time state of an Agent (spec.md §3).
type AgentState string

const (
	AgentSpawning     AgentState = "spawning"
	AgentIdle         AgentState = "idle"
	AgentWorking      AgentState = "working"
	AgentWaitingInput AgentState = "waiting-input"
	AgentCompleted    AgentState = "completed"
	AgentError        AgentState = "error"
	AgentLost         AgentState = "lost"
	AgentTerminated   AgentState = "terminated"
)

// Terminal reports whether the state is a terminal one for the loop
// (matches the invariant in spec.md §8: a `doing` task has exactly one Agent
// whose state is not in {completed, terminated, lost}).
func (s AgentState) Terminal() bool {
	switch s {
	case AgentCompleted, AgentTerminated, AgentLost:
		return true
	default:
		return false
	}
}

// Handle is the backend-specific tagged handle union for an Agent's backend
// session (spec.md §3: "a type-tagged union"). Session is always populated —
// every backend type drives a multiplexer session, whether on the local
// host, a remote host, inside a container or inside a pod.
type Handle struct {
	Kind        RuntimeType `json:"kind"`
	Session     string      `json:"session"`
	Window      string      `json:"window,omitempty"`
	Pane        string      `json:"pane,omitempty"`
	Host        string      `json:"host,omitempty"`
	ContainerID string      `json:"containerId,omitempty"`
	PodName     string      `json:"podName,omitempty"`
	Namespace   string      `json:"namespace,omitempty"`
	Label       Label       `json:"label"`
}

// Label is the well-known labelling every session the daemon creates
// carries, per spec.md §6 ("Backend labelling") — the sole source of truth
// for reconciliation and orphan detection.
type Label struct {
	Managed     bool   `json:"managed"`
	AgentID     string `json:"agentId"`
	SessionName string `json:"sessionName"`
	Provider    string `json:"provider"`
	CreatedAt   Millis `json:"createdAt"`
}

// Agent is the run-time shadow of a task in the doing column (spec.md §3).
// Its Handle/State/LastActivityAt are checkpointed to the store so
// reconciliation can run after a crash; the rest of the struct lives only
// in memory.
type Agent struct {
	ID             string     `json:"id"` // == Task.ID
	RuntimeID      string     `json:"runtimeId"`
	Handle         Handle     `json:"handle"`
	State          AgentState `json:"state"`
	LastActivityAt Millis     `json:"lastActivityAt"`
	LastProgress   *Progress  `json:"lastProgress,omitempty"`
}

// Progress is a parsed <task-progress> marker.
type Progress struct {
	Phase  string   `json:"phase"`
	Status string   `json:"status"`
	Files  []string `json:"files,omitempty"`
}

// StageType is the execution mode of a pipeline Stage.
type StageType string

const (
	StageSequential StageType = "sequential"
	StageParallel   StageType = "parallel"
	StageConditional StageType = "conditional"
	StageFanOut     StageType = "fan-out"
)

// FanOutPolicy controls a fan-out stage's success semantics (SPEC_FULL.md
// §D.4 — resolves the "all vs any succeed" open question).
type FanOutPolicy string

const (
	FanOutAll FanOutPolicy = "all"
	FanOutAny FanOutPolicy = "any"
)

// Stage is one step of a PipelineDefinition (spec.md §3).
type Stage struct {
	Name         string       `json:"name"`
	Type         StageType    `json:"type"`
	Role         string       `json:"role"`
	Prompt       string       `json:"prompt"`
	Dependencies []string     `json:"dependencies"`
	When         string       `json:"when,omitempty"` // predicate expression, evaluated by pipeline.Evaluator
	FanOutCount  int          `json:"fanOutCount,omitempty"`
	FanOutPolicy FanOutPolicy `json:"fanOutPolicy,omitempty"`
}

// PipelineDefinition is a named, reusable DAG of stages (spec.md §3).
type PipelineDefinition struct {
	ID     string  `db:"id" json:"id"`
	Name   string  `db:"name" json:"name"`
	Stages []Stage `json:"stages"`
}

// RunStatus is the status of a PipelineRun (spec.md §3).
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCancelled RunStatus = "cancelled"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StageStatus is the per-stage status within a PipelineRun (spec.md §3).
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageState is one entry of a PipelineRun.StageStates mapping.
type StageState struct {
	Status StageStatus `json:"status"`
	TaskID *string     `json:"task,omitempty"`
	// TaskIDs holds sibling task ids for a fan-out stage.
	TaskIDs []string `json:"taskIds,omitempty"`
	// Output is the backing task's captured output once the stage finishes.
	Output string `json:"output,omitempty"`
}

// Team groups lanes under a named umbrella for the team.* RPC namespace
// (spec.md §6). The spec's data model doesn't define a dedicated entity for
// this surface, so Team is a minimal additive type: enough to list/create/
// delete and to let the "quick" convenience methods (quickCode,
// quickResearch) pick a lane to submit into.
type Team struct {
	ID        string   `db:"id" json:"id"`
	Name      string   `db:"name" json:"name"`
	LaneIDs   []string `json:"laneIds"`
	CreatedAt Millis   `db:"created_at" json:"createdAt"`
}

// PipelineRun is a live instance of a PipelineDefinition (spec.md §3).
type PipelineRun struct {
	ID          string                `db:"id" json:"id"`
	PipelineID  string                `db:"pipeline_id" json:"pipelineId"`
	Status      RunStatus             `db:"status" json:"status"`
	StageStates map[string]StageState `json:"stageStates"`
	StartedAt   Millis                `db:"started_at" json:"startedAt"`
	EndedAt     *Millis               `db:"ended_at" json:"endedAt,omitempty"`
}
