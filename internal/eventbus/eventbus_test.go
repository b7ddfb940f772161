package eventbus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/eventbus"
)

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := eventbus.New()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.PublishTask(eventbus.EventTaskCreated, "task-1", nil)

	e1 := <-ch1
	e2 := <-ch2
	assert.Equal(t, "task-1", e1.TaskID)
	assert.Equal(t, "task-1", e2.TaskID)
	assert.Equal(t, eventbus.EventTaskCreated, e1.Type)
}

func TestPublishOrderingPerTask(t *testing.T) {
	b := eventbus.New()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishTask(eventbus.EventTaskCreated, "task-1", nil)
	b.PublishTask(eventbus.EventTaskMoved, "task-1", nil)
	b.PublishTask(eventbus.EventTaskUpdated, "task-1", nil)

	require.Equal(t, eventbus.EventTaskCreated, (<-ch).Type)
	require.Equal(t, eventbus.EventTaskMoved, (<-ch).Type)
	require.Equal(t, eventbus.EventTaskUpdated, (<-ch).Type)
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	b := eventbus.New()
	_, unsub := b.Subscribe() // never drained
	defer unsub()

	for i := 0; i < 300; i++ {
		b.PublishTask(eventbus.EventTaskUpdated, "task-1", nil)
	}
	assert.Greater(t, b.DroppedCount(), uint64(0))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := eventbus.New()
	ch, unsub := b.Subscribe()
	unsub()

	b.PublishTask(eventbus.EventTaskCreated, "task-1", nil)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := eventbus.New()
	ch, _ := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())
}
