package executor

import (
	"context"
	"fmt"

	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// SubmitAnswer records an answer to a blocked question. When it was the last
// unanswered question for its item, the item's status reverts to the status
// it held before blocking (falling back to Ready) so the resolver can pick it
// up again.
func (e *Executor) SubmitAnswer(ctx context.Context, questionID, answer string) error {
	question, err := e.store.GetQuestion(ctx, questionID)
	if err != nil {
		return fmt.Errorf("failed to load question %s: %w", questionID, err)
	}

	if err := e.store.AnswerQuestion(ctx, questionID, answer); err != nil {
		return err
	}

	if e.bus != nil {
		_ = e.bus.Dispatch(ctx, &eventbus.Event{
			Type:       eventbus.EventQuestionAnswered,
			QuestionID: questionID,
			WorkItemID: question.WorkItemID,
		})
	}

	allAnswered, err := e.allQuestionsAnswered(ctx, question.WorkItemID)
	if err != nil {
		return err
	}
	if !allAnswered {
		return nil
	}

	item, err := e.store.GetItem(ctx, question.WorkItemID)
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", question.WorkItemID, err)
	}
	if item.Status != types.StatusBlocked {
		return nil
	}

	oldStatus := item.Status
	restored := types.StatusReady
	if item.PreviousStatus != nil {
		restored = *item.PreviousStatus
	}
	// Nobody holds the item anymore; it must go back through the scheduler.
	if restored == types.StatusInProgress {
		restored = types.StatusReady
	}
	item.Status = restored
	item.PreviousStatus = nil

	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to unblock item %s: %w", item.ID, err)
	}

	if e.bus != nil {
		_ = e.bus.Dispatch(ctx, &eventbus.Event{
			Type:       eventbus.EventWorkItemStatusChanged,
			WorkItemID: item.ID,
			OldStatus:  string(oldStatus),
			NewStatus:  string(item.Status),
		})
	}
	return nil
}
