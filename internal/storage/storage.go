// Package storage provides the persistence ports for bartleby.
//
// The concrete backends live in the sqlite and memory sub-packages. This
// package holds the interface and sentinel errors referenced by both the
// implementations and their consumers (orchestrator, executor, syncer,
// cmd/bartleby).
package storage

import (
	"context"
	"errors"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateExternalRef is returned when creating an item whose
// (SourceName, ExternalID) pair is already bound to another item.
var ErrDuplicateExternalRef = errors.New("duplicate external reference")

// ErrAlreadyAnswered is returned when answering a question twice.
var ErrAlreadyAnswered = errors.New("question already answered")

// Storage is the persistence port. Consumers depend on this interface rather
// than on a concrete backend so that alternatives (memory for tests, sqlite
// in production) can be substituted. CreatedAt/UpdatedAt are stamped by the
// implementation; all methods honour the passed context.
type Storage interface {
	// Work items
	CreateItem(ctx context.Context, item *types.WorkItem) error
	GetItem(ctx context.Context, id string) (*types.WorkItem, error)
	GetItemByExternalRef(ctx context.Context, sourceName, externalID string) (*types.WorkItem, error)
	ListItems(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error)
	UpdateItem(ctx context.Context, item *types.WorkItem) error
	DeleteItem(ctx context.Context, id string) error

	// Blocked questions
	CreateQuestion(ctx context.Context, q *types.BlockedQuestion) error
	GetQuestion(ctx context.Context, id string) (*types.BlockedQuestion, error)
	GetQuestionsForItem(ctx context.Context, itemID string) ([]*types.BlockedQuestion, error)
	ListUnansweredQuestions(ctx context.Context) ([]*types.BlockedQuestion, error)
	AnswerQuestion(ctx context.Context, id, answer string) error

	// Work sessions (append-only provenance)
	CreateSession(ctx context.Context, s *types.WorkSession) error
	UpdateSession(ctx context.Context, s *types.WorkSession) error
	GetSession(ctx context.Context, id string) (*types.WorkSession, error)
	GetSessionsForItem(ctx context.Context, itemID string) ([]*types.WorkSession, error)

	// Settings (key-value; the config package layers AppSettings on top)
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	GetAllConfig(ctx context.Context) (map[string]string, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Lifecycle
	Close() error
}
