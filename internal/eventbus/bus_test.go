package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(name string, order int, calls *[]string, types ...EventType) *HandlerFunc {
	return &HandlerFunc{
		Name:  name,
		Types: types,
		Order: order,
		Callback: func(context.Context, *Event) error {
			*calls = append(*calls, name)
			return nil
		},
	}
}

func TestDispatchPriorityOrder(t *testing.T) {
	bus := New()
	var calls []string
	// Registered out of order on purpose.
	bus.Register(recorder("third", 30, &calls, EventStateChanged))
	bus.Register(recorder("first", 1, &calls, EventStateChanged))
	bus.Register(recorder("second", 15, &calls, EventStateChanged))

	require.NoError(t, bus.Dispatch(context.Background(), &Event{Type: EventStateChanged}))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestDispatchMatchesByType(t *testing.T) {
	bus := New()
	var calls []string
	bus.Register(recorder("sync", 0, &calls, EventSyncStarted, EventSyncCompleted))
	bus.Register(recorder("status", 0, &calls, EventWorkItemStatusChanged))

	require.NoError(t, bus.Dispatch(context.Background(), &Event{Type: EventSyncCompleted}))
	assert.Equal(t, []string{"sync"}, calls)
}

func TestDispatchHandlerErrorDoesNotStopChain(t *testing.T) {
	bus := New()
	var calls []string
	bus.Register(&HandlerFunc{
		Name:  "failing",
		Types: []EventType{EventStateChanged},
		Order: 0,
		Callback: func(context.Context, *Event) error {
			calls = append(calls, "failing")
			return errors.New("handler broke")
		},
	})
	bus.Register(recorder("after", 10, &calls, EventStateChanged))

	err := bus.Dispatch(context.Background(), &Event{Type: EventStateChanged})
	require.NoError(t, err, "handler errors are swallowed")
	assert.Equal(t, []string{"failing", "after"}, calls)
}

func TestDispatchStampsEmittedAt(t *testing.T) {
	bus := New()
	event := &Event{Type: EventStateChanged}
	require.NoError(t, bus.Dispatch(context.Background(), event))
	assert.False(t, event.EmittedAt.IsZero())
}

func TestDispatchNilEvent(t *testing.T) {
	bus := New()
	assert.Error(t, bus.Dispatch(context.Background(), nil))
}

func TestDispatchCancelledContext(t *testing.T) {
	bus := New()
	var calls []string
	bus.Register(recorder("h", 0, &calls, EventStateChanged))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := bus.Dispatch(ctx, &Event{Type: EventStateChanged})
	assert.Error(t, err)
	assert.Empty(t, calls)
}
