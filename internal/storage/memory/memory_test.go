package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

func TestItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	item := &types.WorkItem{
		ID:     "a",
		Title:  "First",
		Status: types.StatusPending,
		Labels: []string{"bug"},
	}
	require.NoError(t, s.CreateItem(ctx, item))
	assert.False(t, item.CreatedAt.IsZero(), "create stamps timestamps")

	got, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)

	// Reads are copies; mutating one must not leak into the store.
	got.Title = "mutated"
	got.Labels[0] = "mutated"
	again, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "First", again.Title)
	assert.Equal(t, []string{"bug"}, again.Labels)
}

func TestGetItemNotFound(t *testing.T) {
	_, err := New().GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateItemDuplicateExternalRef(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateItem(ctx, &types.WorkItem{
		ID: "a", Title: "one", SourceName: "github", ExternalID: "7",
	}))
	err := s.CreateItem(ctx, &types.WorkItem{
		ID: "b", Title: "two", SourceName: "github", ExternalID: "7",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateExternalRef)

	got, err := s.GetItemByExternalRef(ctx, "github", "7")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestUpdateItemPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	require.NoError(t, s.CreateItem(ctx, &types.WorkItem{ID: "a", Title: "one"}))

	s.SetClock(func() time.Time { return base.Add(time.Hour) })
	require.NoError(t, s.UpdateItem(ctx, &types.WorkItem{ID: "a", Title: "renamed"}))

	got, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))
}

func TestListItemsFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, spec := range []struct {
		id     string
		status types.Status
		source string
	}{
		{"c", types.StatusReady, "github"},
		{"a", types.StatusReady, ""},
		{"b", types.StatusPending, "github"},
	} {
		s.SetClock(func() time.Time { return base.Add(time.Duration(i) * time.Minute) })
		require.NoError(t, s.CreateItem(ctx, &types.WorkItem{
			ID: spec.id, Title: spec.id, Status: spec.status, SourceName: spec.source, ExternalID: spec.id,
		}))
	}

	all, err := s.ListItems(ctx, types.WorkItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "creation order, not id order")

	ready := types.StatusReady
	filtered, err := s.ListItems(ctx, types.WorkItemFilter{Status: &ready, SourceName: "github"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "c", filtered[0].ID)

	limited, err := s.ListItems(ctx, types.WorkItemFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestDeleteItemCascadesQuestionsNotSessions(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateItem(ctx, &types.WorkItem{ID: "a", Title: "one", SourceName: "github", ExternalID: "7"}))
	require.NoError(t, s.CreateQuestion(ctx, &types.BlockedQuestion{ID: "q1", WorkItemID: "a", Question: "why?"}))
	require.NoError(t, s.CreateSession(ctx, &types.WorkSession{ID: "s1", WorkItemID: "a", Transformation: types.TransformInterpret}))

	require.NoError(t, s.DeleteItem(ctx, "a"))

	_, err := s.GetItem(ctx, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetQuestion(ctx, "q1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Sessions are provenance and survive.
	sessions, err := s.GetSessionsForItem(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	// The external binding is free for reuse.
	assert.NoError(t, s.CreateItem(ctx, &types.WorkItem{ID: "b", Title: "two", SourceName: "github", ExternalID: "7"}))
}

func TestAnswerQuestionOnce(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateQuestion(ctx, &types.BlockedQuestion{ID: "q1", WorkItemID: "a", Question: "why?"}))

	open, err := s.ListUnansweredQuestions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, s.AnswerQuestion(ctx, "q1", "because"))

	q, err := s.GetQuestion(ctx, "q1")
	require.NoError(t, err)
	require.NotNil(t, q.Answer)
	assert.Equal(t, "because", *q.Answer)
	assert.NotNil(t, q.AnsweredAt)

	err = s.AnswerQuestion(ctx, "q1", "again")
	assert.ErrorIs(t, err, storage.ErrAlreadyAnswered)

	open, err = s.ListUnansweredQuestions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSessionOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"s2", "s1", "s3"} {
		require.NoError(t, s.CreateSession(ctx, &types.WorkSession{
			ID: id, WorkItemID: "a", StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	sessions, err := s.GetSessionsForItem(ctx, "a")
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, "s3", sessions[2].ID)
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetConfig(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SetConfig(ctx, "settings", `{"a":1}`))
	v, err := s.GetConfig(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	all, err := s.GetAllConfig(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	s := New()

	for id, status := range map[string]types.Status{
		"a": types.StatusPending,
		"b": types.StatusReady,
		"c": types.StatusReady,
		"d": types.StatusComplete,
		"e": types.StatusBlocked,
	} {
		require.NoError(t, s.CreateItem(ctx, &types.WorkItem{ID: id, Title: id, Status: status}))
	}
	require.NoError(t, s.CreateQuestion(ctx, &types.BlockedQuestion{ID: "q1", WorkItemID: "e", Question: "?"}))

	stats, err := s.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalItems)
	assert.Equal(t, 1, stats.PendingItems)
	assert.Equal(t, 2, stats.ReadyItems)
	assert.Equal(t, 1, stats.CompleteItems)
	assert.Equal(t, 1, stats.BlockedItems)
	assert.Equal(t, 1, stats.OpenQuestions)
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.CreateItem(ctx, &types.WorkItem{ID: "a", Title: "one"})
	assert.True(t, errors.Is(err, context.Canceled))
}
