// Package executor drives one work item through its AI transformation chain
// and keeps the append-only session provenance. The executor owns the item's
// status transitions during work; the orchestrator owns scheduling, budget,
// and git.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/elephantgerald/bartleby-sub001/internal/ai"
	"github.com/elephantgerald/bartleby-sub001/internal/debug"
	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// genericContextQuestion is raised when the model reports needs_context
// without asking anything concrete.
const genericContextQuestion = "The work item lacks the information needed to proceed. " +
	"Please add detail to the description or answer with the missing context."

// Executor runs transformations against a provider and records provenance.
type Executor struct {
	store    storage.Storage
	provider ai.Provider
	bus      *eventbus.Bus

	workingDir string
	now        func() time.Time
}

// New creates an executor. workingDir is the repository the AI operates on.
func New(store storage.Storage, provider ai.Provider, bus *eventbus.Bus, workingDir string) *Executor {
	return &Executor{
		store:      store,
		provider:   provider,
		bus:        bus,
		workingDir: workingDir,
		now:        time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// GetNextTransformation determines the next step for an item from its session
// history. The chain is Interpret, Plan, Execute, then Refine only when the
// Execute session did not complete, then Finalize. A completed Execute is
// terminal and skips Finalize. Returns "" when no further work remains.
//
// An item whose most recent session was blocked resumes with
// AskClarification once every question has an answer.
func (e *Executor) GetNextTransformation(ctx context.Context, itemID string) (types.TransformationType, error) {
	sessions, err := e.store.GetSessionsForItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to load sessions for %s: %w", itemID, err)
	}

	if len(sessions) == 0 {
		return types.TransformInterpret, nil
	}

	last := sessions[len(sessions)-1]
	if last.Outcome == types.OutcomeBlocked {
		answered, err := e.allQuestionsAnswered(ctx, itemID)
		if err != nil {
			return "", err
		}
		if !answered {
			return "", nil
		}
		return types.TransformAskClarification, nil
	}

	// Walk history for the furthest completed step. AskClarification resumes
	// the step that blocked, so it maps to the same progression slot.
	var executeCompleted bool
	progress := map[types.TransformationType]bool{}
	for _, s := range sessions {
		if s.Outcome != types.OutcomeCompleted {
			continue
		}
		progress[s.Transformation] = true
		if s.Transformation == types.TransformExecute {
			executeCompleted = true
		}
	}

	switch {
	case !progress[types.TransformInterpret]:
		return types.TransformInterpret, nil
	case !progress[types.TransformPlan]:
		return types.TransformPlan, nil
	case !progress[types.TransformExecute] && !sessionRan(sessions, types.TransformExecute):
		return types.TransformExecute, nil
	case executeCompleted:
		// Completed Execute is terminal; Finalize is skipped.
		return "", nil
	case !progress[types.TransformRefine]:
		return types.TransformRefine, nil
	case !progress[types.TransformFinalize]:
		return types.TransformFinalize, nil
	}
	return "", nil
}

// sessionRan reports whether any session of the given transformation exists,
// regardless of outcome.
func sessionRan(sessions []*types.WorkSession, t types.TransformationType) bool {
	for _, s := range sessions {
		if s.Transformation == t {
			return true
		}
	}
	return false
}

// allQuestionsAnswered reports whether every question for the item has an
// answer. Items with no questions count as answered.
func (e *Executor) allQuestionsAnswered(ctx context.Context, itemID string) (bool, error) {
	questions, err := e.store.GetQuestionsForItem(ctx, itemID)
	if err != nil {
		return false, fmt.Errorf("failed to load questions for %s: %w", itemID, err)
	}
	for _, q := range questions {
		if !q.IsAnswered() {
			return false, nil
		}
	}
	return true, nil
}

// BuildContext aggregates the item, its prior sessions, and its answered
// questions for the provider. Returns (nil, nil) when the item is missing.
func (e *Executor) BuildContext(ctx context.Context, itemID string, transformation types.TransformationType) (*ai.WorkContext, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	sessions, err := e.store.GetSessionsForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions for %s: %w", itemID, err)
	}

	questions, err := e.store.GetQuestionsForItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions for %s: %w", itemID, err)
	}
	var answered []*types.BlockedQuestion
	for _, q := range questions {
		if q.IsAnswered() {
			answered = append(answered, q)
		}
	}

	return &ai.WorkContext{
		Item:           item,
		Transformation: transformation,
		Sessions:       sessions,
		Answered:       answered,
		WorkingDir:     e.workingDir,
	}, nil
}

// Execute runs one transformation. A session row is written with outcome
// in_progress BEFORE the provider call and updated after it, so every AI
// invocation leaves exactly one session row even on crash. The item's status
// is updated according to the result; the caller receives the final result
// for budget accounting and git.
func (e *Executor) Execute(ctx context.Context, wc *ai.WorkContext) (*ai.WorkResult, error) {
	if wc == nil || wc.Item == nil {
		return nil, fmt.Errorf("executor: nil work context")
	}

	session := &types.WorkSession{
		ID:             ulid.Make().String(),
		WorkItemID:     wc.Item.ID,
		Transformation: wc.Transformation,
		StartedAt:      e.now(),
		Outcome:        types.OutcomeInProgress,
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to pre-write session: %w", err)
	}

	result, callErr := e.provider.ExecuteWork(ctx, wc)
	ended := e.now()
	session.EndedAt = &ended

	if callErr != nil {
		session.Outcome = types.OutcomeFailed
		session.ErrorMessage = callErr.Error()
		if ctx.Err() != nil {
			session.ErrorMessage = "cancelled"
		}
		if err := e.store.UpdateSession(context.WithoutCancel(ctx), session); err != nil {
			debug.Logf("executor: failed to close session %s: %v\n", session.ID, err)
		}
		e.emitSession(ctx, session)
		return nil, callErr
	}

	session.Outcome = sessionOutcome(result.Outcome)
	session.Summary = result.Summary
	session.ModifiedFiles = result.ModifiedFiles
	session.TokensUsed = result.TokensUsed
	session.ErrorMessage = result.ErrorMessage
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", session.ID, err)
	}

	if err := e.applyResult(ctx, wc, result); err != nil {
		return nil, err
	}

	e.emitSession(ctx, session)
	return result, nil
}

// sessionOutcome maps a model outcome onto the session disposition.
// needs_context records as blocked since the item ends up blocked on a
// question either way.
func sessionOutcome(o ai.Outcome) types.SessionOutcome {
	switch o {
	case ai.OutcomeCompleted:
		return types.OutcomeCompleted
	case ai.OutcomeBlocked, ai.OutcomeNeedsContext:
		return types.OutcomeBlocked
	default:
		return types.OutcomeFailed
	}
}

// applyResult mutates the item per the model's outcome. Failed results leave
// the status untouched for the orchestrator's retry policy.
func (e *Executor) applyResult(ctx context.Context, wc *ai.WorkContext, result *ai.WorkResult) error {
	item := wc.Item
	oldStatus := item.Status

	switch result.Outcome {
	case ai.OutcomeCompleted:
		// Only the terminal transformations complete the item; earlier
		// completed steps keep it in progress for the next step.
		if wc.Transformation == types.TransformExecute || wc.Transformation == types.TransformFinalize {
			item.Status = types.StatusComplete
			item.PreviousStatus = nil
			item.ErrorMessage = ""
		}

	case ai.OutcomeBlocked, ai.OutcomeNeedsContext:
		questions := result.Questions
		if len(questions) == 0 {
			questions = []string{genericContextQuestion}
		}
		for _, q := range questions {
			if q == "" {
				continue
			}
			bq := &types.BlockedQuestion{
				ID:         uuid.NewString(),
				WorkItemID: item.ID,
				Question:   q,
				Context:    result.Summary,
			}
			if err := e.store.CreateQuestion(ctx, bq); err != nil {
				return fmt.Errorf("failed to create question: %w", err)
			}
		}
		// InProgress is the executor's own transient hold, not a state worth
		// restoring; the item should re-enter the scheduler as Ready.
		prev := oldStatus
		if prev == types.StatusInProgress {
			prev = types.StatusReady
		}
		item.PreviousStatus = &prev
		item.Status = types.StatusBlocked

	case ai.OutcomeFailed:
		item.ErrorMessage = result.ErrorMessage
	}

	now := e.now()
	item.LastWorkedAt = &now
	item.AttemptCount++

	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.ID, err)
	}

	if item.Status != oldStatus && e.bus != nil {
		_ = e.bus.Dispatch(ctx, &eventbus.Event{
			Type:       eventbus.EventWorkItemStatusChanged,
			WorkItemID: item.ID,
			OldStatus:  string(oldStatus),
			NewStatus:  string(item.Status),
		})
	}
	return nil
}

func (e *Executor) emitSession(ctx context.Context, session *types.WorkSession) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Dispatch(context.WithoutCancel(ctx), &eventbus.Event{
		Type:       eventbus.EventSessionRecorded,
		WorkItemID: session.WorkItemID,
		SessionID:  session.ID,
		Outcome:    string(session.Outcome),
	})
}
