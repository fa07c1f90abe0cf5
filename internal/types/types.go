// Package types defines core data structures for the bartleby scrivener.
package types

import (
	"fmt"
	"time"
)

// WorkItem represents a single unit of work pulled from an external tracker
// (or created manually) and driven through AI-mediated transformations.
type WorkItem struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         Status     `json:"status,omitempty"`
	PreviousStatus *Status    `json:"previous_status,omitempty"` // Saved when entering blocked, restored on unblock
	SourceName     string     `json:"source_name,omitempty"`     // External tracker name (e.g. "github")
	ExternalID     string     `json:"external_id,omitempty"`     // Tracker-scoped identifier (e.g. issue number)
	ExternalURL    string     `json:"external_url,omitempty"`
	Dependencies   []string   `json:"dependencies,omitempty"` // Ordered work-item ids this item depends on
	Labels         []string   `json:"labels,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastWorkedAt   *time.Time `json:"last_worked_at,omitempty"`
	AttemptCount   int        `json:"attempt_count,omitempty"`
	BranchName     string     `json:"branch_name,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}

// ExternalKey returns the (SourceName, ExternalID) pair as a single string,
// or "" when the item has no external reference. The pair is unique when present.
func (w *WorkItem) ExternalKey() string {
	if w.SourceName == "" || w.ExternalID == "" {
		return ""
	}
	return w.SourceName + ":" + w.ExternalID
}

// HasExternalRef reports whether the item is bound to an external tracker object.
func (w *WorkItem) HasExternalRef() bool {
	return w.ExternalKey() != ""
}

// Validate checks field values and the structural invariants:
// PreviousStatus is set iff Status is blocked, and UpdatedAt >= CreatedAt.
func (w *WorkItem) Validate() error {
	if len(w.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(w.Title))
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", w.Status)
	}
	if w.Status == StatusBlocked && w.PreviousStatus == nil {
		return fmt.Errorf("blocked items must record previous_status")
	}
	if w.Status != StatusBlocked && w.PreviousStatus != nil {
		return fmt.Errorf("non-blocked items cannot have previous_status")
	}
	if (w.SourceName == "") != (w.ExternalID == "") {
		return fmt.Errorf("source_name and external_id must be set together")
	}
	if !w.UpdatedAt.IsZero() && !w.CreatedAt.IsZero() && w.UpdatedAt.Before(w.CreatedAt) {
		return fmt.Errorf("updated_at cannot precede created_at")
	}
	if w.AttemptCount < 0 {
		return fmt.Errorf("attempt_count cannot be negative")
	}
	return nil
}

// SetDefaults applies default values for fields omitted during import.
func (w *WorkItem) SetDefaults() {
	if w.Status == "" {
		w.Status = StatusPending
	}
}

// Status represents the current state of a work item.
type Status string

// Work item status constants.
const (
	StatusPending    Status = "pending"     // Synced but dependencies unmet
	StatusReady      Status = "ready"       // Eligible for execution
	StatusInProgress Status = "in_progress" // Currently held by the executor
	StatusBlocked    Status = "blocked"     // Awaiting answers to generated questions
	StatusComplete   Status = "complete"    // Terminal
	StatusFailed     Status = "failed"      // Terminal (may be retried manually)
)

// IsValid checks if the status value is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusReady, StatusInProgress, StatusBlocked, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the item's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Managed reports whether the status is one bartleby pushes back to the
// external tracker (as labels or a closed flag).
func (s Status) Managed() bool {
	switch s {
	case StatusReady, StatusInProgress, StatusBlocked, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// TransformationType identifies one AI-mediated step in an item's lifecycle.
type TransformationType string

// Transformation constants, in nominal execution order.
const (
	TransformInterpret        TransformationType = "interpret"
	TransformPlan             TransformationType = "plan"
	TransformExecute          TransformationType = "execute"
	TransformRefine           TransformationType = "refine"
	TransformAskClarification TransformationType = "ask_clarification"
	TransformFinalize         TransformationType = "finalize"
)

// IsValid checks if the transformation type value is valid.
func (t TransformationType) IsValid() bool {
	switch t {
	case TransformInterpret, TransformPlan, TransformExecute,
		TransformRefine, TransformAskClarification, TransformFinalize:
		return true
	}
	return false
}

// BlockedQuestion is a clarification the AI raised that must be answered
// before the item can resume.
type BlockedQuestion struct {
	ID         string     `json:"id"`
	WorkItemID string     `json:"work_item_id"`
	Question   string     `json:"question"`
	Context    string     `json:"context,omitempty"`
	Answer     *string    `json:"answer,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
}

// IsAnswered reports whether the question has an answer.
func (q *BlockedQuestion) IsAnswered() bool {
	return q.Answer != nil
}

// WorkSession is the append-only provenance record of a single AI invocation.
type WorkSession struct {
	ID             string             `json:"id"`
	WorkItemID     string             `json:"work_item_id"`
	Transformation TransformationType `json:"transformation"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
	Outcome        SessionOutcome     `json:"outcome"`
	Summary        string             `json:"summary,omitempty"`
	ModifiedFiles  []string           `json:"modified_files,omitempty"`
	CommitSha      string             `json:"commit_sha,omitempty"`
	TokensUsed     int                `json:"tokens_used,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

// SessionOutcome is the final disposition of a work session.
type SessionOutcome string

// Session outcome constants.
const (
	OutcomeInProgress SessionOutcome = "in_progress"
	OutcomeCompleted  SessionOutcome = "completed"
	OutcomeBlocked    SessionOutcome = "blocked"
	OutcomeFailed     SessionOutcome = "failed"
)

// IsValid checks if the session outcome value is valid.
func (o SessionOutcome) IsValid() bool {
	switch o {
	case OutcomeInProgress, OutcomeCompleted, OutcomeBlocked, OutcomeFailed:
		return true
	}
	return false
}

// WorkItemFilter is used to filter work item queries.
type WorkItemFilter struct {
	Status     *Status
	SourceName string
	Labels     []string // AND semantics: item must have ALL these labels
	Limit      int
}

// Statistics provides aggregate metrics over the local store.
type Statistics struct {
	TotalItems      int `json:"total_items"`
	PendingItems    int `json:"pending_items"`
	ReadyItems      int `json:"ready_items"`
	InProgressItems int `json:"in_progress_items"`
	BlockedItems    int `json:"blocked_items"`
	CompleteItems   int `json:"complete_items"`
	FailedItems     int `json:"failed_items"`
	OpenQuestions   int `json:"open_questions"`
}

// SyncAction describes what happened to one item during reconciliation.
type SyncAction string

// Sync action constants.
const (
	SyncAdded        SyncAction = "added"
	SyncUpdated      SyncAction = "updated"
	SyncRemoved      SyncAction = "removed"
	SyncStatusPushed SyncAction = "status_pushed"
)

// SyncResult aggregates the outcome of one reconciliation run.
type SyncResult struct {
	Success        bool      `json:"success"`
	Added          int       `json:"added"`
	Updated        int       `json:"updated"`
	Removed        int       `json:"removed"`
	StatusesPushed int       `json:"statuses_pushed"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}
