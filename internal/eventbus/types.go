package eventbus

import "time"

// EventType identifies an event flowing through the bus.
type EventType string

const (
	// Orchestrator lifecycle events.
	EventStateChanged          EventType = "StateChanged"
	EventWorkItemStatusChanged EventType = "WorkItemStatusChanged"
	EventSessionRecorded       EventType = "SessionRecorded"

	// Sync events.
	EventSyncStarted   EventType = "SyncStarted"
	EventSyncCompleted EventType = "SyncCompleted"
	EventItemSynced    EventType = "ItemSynced"

	// Question events.
	EventQuestionAnswered EventType = "QuestionAnswered"
)

// Event represents a single event flowing through the bus. Events are plain
// value types; the fields populated depend on Type. Events are emitted only
// after the corresponding state is durably persisted.
type Event struct {
	Type      EventType `json:"event_type"`
	EmittedAt time.Time `json:"emitted_at"`

	// StateChanged fields.
	OldState string `json:"old_state,omitempty"`
	NewState string `json:"new_state,omitempty"`

	// Work item fields (WorkItemStatusChanged, ItemSynced, SessionRecorded).
	WorkItemID string `json:"work_item_id,omitempty"`
	OldStatus  string `json:"old_status,omitempty"`
	NewStatus  string `json:"new_status,omitempty"`
	SyncAction string `json:"sync_action,omitempty"`

	// SessionRecorded fields.
	SessionID string `json:"session_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`

	// SyncCompleted / error reporting.
	Added          int    `json:"added,omitempty"`
	Updated        int    `json:"updated,omitempty"`
	Removed        int    `json:"removed,omitempty"`
	StatusesPushed int    `json:"statuses_pushed,omitempty"`
	Error          string `json:"error,omitempty"`

	// QuestionAnswered fields.
	QuestionID string `json:"question_id,omitempty"`
}
