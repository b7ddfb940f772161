// Package eventbus is an in-process pub/sub bus for daemon lifecycle
// events, grounded directly on the teacher's internal/eventbus (a
// mutex-protected map of subscriber channels with non-blocking publish that
// drops the new event for a subscriber whose channel is full). We generalize it from the teacher's single decision-event type
// to the task/agent/pipeline event taxonomy spec.md §4.9 calls for, and add
// a dropped-event counter so a stuck RPC stream subscriber is observable
// rather than silently losing events.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/model"
)

// EventType identifies the kind of event on the bus.
type EventType string

const (
	EventTaskCreated      EventType = "task.created"
	EventTaskMoved        EventType = "task.moved"
	EventTaskUpdated      EventType = "task.updated"
	EventTaskDeleted      EventType = "task.deleted"
	EventAgentSpawned     EventType = "agent.spawned"
	EventAgentStateChanged EventType = "agent.state-changed"
	EventAgentProgress    EventType = "agent.progress"
	EventAgentLost        EventType = "agent.lost"
	EventAgentReconnected EventType = "agent.reconnected"
	EventPipelineStarted  EventType = "pipeline.started"
	EventPipelineStageDone EventType = "pipeline.stage-done"
	EventPipelineFinished EventType = "pipeline.finished"
	EventHealthChanged    EventType = "health.changed"
)

// Event is one bus record. TaskID is set whenever the event concerns a
// specific task, so subscribers (and the per-task ordering guarantee below)
// can filter or group by it.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"taskId,omitempty"`
	At     model.Millis `json:"at"`
	Data   any       `json:"data,omitempty"`
}

// subscriberBuffer is the bounded channel capacity per subscriber. A
// subscriber that falls this far behind starts losing events rather than
// blocking publishers, the same tradeoff the teacher's bus makes.
const subscriberBuffer = 256

// Bus is an in-process, thread-safe event bus.
//
// Ordering guarantee: events concerning the same TaskID that are published
// by the same goroutine (the owning Agent Supervisor loop, in practice)
// arrive at every live subscriber in publish order, since Publish enqueues
// into each subscriber channel synchronously before returning.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	closed      bool
	dropped     atomic.Uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[uint64]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel along
// with an unsubscribe function that must be called when done.
func (b *Bus) Subscribe() (events <-chan Event, unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subscribers[id]; ok {
			close(ch)
			delete(b.subscribers, id)
		}
	}
}

// Publish delivers event to every live subscriber, non-blocking: a
// subscriber whose channel is full has the event dropped for it and the
// bus-wide DroppedCount incremented.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// PublishTask is a convenience wrapper stamping TaskID and the current time.
func (b *Bus) PublishTask(t EventType, taskID string, data any) {
	b.Publish(Event{Type: t, TaskID: taskID, At: model.NowMillis(), Data: data})
}

// DroppedCount returns the total number of per-subscriber drops since
// startup, surfaced by the daemon.stats RPC method.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the bus, closing every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
