package main

import (
	"context"
	"fmt"

	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
)

// logHandler prints lifecycle events to stdout. Registered at a high
// priority number so domain handlers run first.
type logHandler struct{}

func newLogHandler() eventbus.Handler {
	return logHandler{}
}

func (logHandler) ID() string { return "cli-log" }

func (logHandler) Priority() int { return 100 }

func (logHandler) Handles() []eventbus.EventType {
	return []eventbus.EventType{
		eventbus.EventStateChanged,
		eventbus.EventWorkItemStatusChanged,
		eventbus.EventSessionRecorded,
		eventbus.EventSyncCompleted,
		eventbus.EventQuestionAnswered,
	}
}

func (logHandler) Handle(_ context.Context, e *eventbus.Event) error {
	switch e.Type {
	case eventbus.EventStateChanged:
		fmt.Printf("state: %s -> %s\n", e.OldState, e.NewState)
	case eventbus.EventWorkItemStatusChanged:
		fmt.Printf("item %s: %s -> %s\n", e.WorkItemID, e.OldStatus, e.NewStatus)
	case eventbus.EventSessionRecorded:
		fmt.Printf("session %s for item %s: %s\n", e.SessionID, e.WorkItemID, e.Outcome)
	case eventbus.EventSyncCompleted:
		if e.Error != "" {
			fmt.Printf("sync failed: %s\n", e.Error)
		} else {
			fmt.Printf("sync: +%d added, %d updated, -%d removed, %d statuses pushed\n",
				e.Added, e.Updated, e.Removed, e.StatusesPushed)
		}
	case eventbus.EventQuestionAnswered:
		fmt.Printf("question %s answered (item %s)\n", e.QuestionID, e.WorkItemID)
	}
	return nil
}
