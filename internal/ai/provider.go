// Package ai drives work item transformations through an LLM provider. The
// provider receives a rendered prompt describing the item and its history and
// returns a structured outcome (completed, blocked on questions, or needing
// more context).
package ai

import (
	"context"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Outcome is the disposition the model reports for one transformation.
type Outcome string

// Model-reported outcome constants.
const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeBlocked      Outcome = "blocked"
	OutcomeNeedsContext Outcome = "needs_context"
	OutcomeFailed       Outcome = "failed"
)

// IsValid checks if the outcome value is one the model may report.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeCompleted, OutcomeBlocked, OutcomeNeedsContext, OutcomeFailed:
		return true
	}
	return false
}

// WorkContext is everything the provider needs to run one transformation:
// the item, the step to perform, and the accumulated history that grounds it.
type WorkContext struct {
	Item           *types.WorkItem
	Transformation types.TransformationType
	Sessions       []*types.WorkSession     // Prior sessions, oldest first
	Answered       []*types.BlockedQuestion // Answered clarifications to fold in
	Instructions   string                   // Optional operator-supplied extra guidance
	WorkingDir     string                   // Repository the work applies to (from settings)
}

// WorkResult is the parsed outcome of one provider invocation.
type WorkResult struct {
	Success       bool     `json:"success"`
	Outcome       Outcome  `json:"outcome"`
	Summary       string   `json:"summary,omitempty"`
	ModifiedFiles []string `json:"modified_files,omitempty"`
	Questions     []string `json:"questions,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	TokensUsed    int      `json:"tokens_used,omitempty"`
}

// Provider is the LLM port. ExecuteWork returns an error only for transport
// or credential failures; model-level failure is reported in the result.
// TestConnection verifies credentials before any work is scheduled.
type Provider interface {
	ExecuteWork(ctx context.Context, wc *WorkContext) (*WorkResult, error)
	TestConnection(ctx context.Context) error
}
