package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/storage/memory"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// fakeSource serves a fixed remote snapshot and records status pushes.
type fakeSource struct {
	items    []*types.WorkItem
	syncErr  error
	pushed   []*types.WorkItem
	comments []string
}

func (f *fakeSource) Name() string { return "github" }

func (f *fakeSource) Sync(context.Context) ([]*types.WorkItem, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.items, nil
}

func (f *fakeSource) UpdateStatus(_ context.Context, item *types.WorkItem) error {
	copied := *item
	f.pushed = append(f.pushed, &copied)
	return nil
}

func (f *fakeSource) AddComment(_ context.Context, _ *types.WorkItem, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeSource) TestConnection(context.Context) error { return nil }

// fixedLock locks a fixed id set.
type fixedLock map[string]bool

func (l fixedLock) IsLocked(id string) bool { return l[id] }

func remoteItem(extID, title string, status types.Status) *types.WorkItem {
	return &types.WorkItem{
		Title:      title,
		SourceName: "github",
		ExternalID: extID,
		Status:     status,
	}
}

func newTestSyncer(source *fakeSource, locks ItemLocker) (*Syncer, *memory.Store, *config.Manager) {
	store := memory.New()
	cfg := config.NewManager(store)
	return New(store, source, cfg, eventbus.New(), locks), store, cfg
}

func TestSyncAddsNewItems(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("1", "First", types.StatusPending),
		remoteItem("2", "Second", types.StatusPending),
	}}
	s, store, _ := newTestSyncer(source, nil)

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Added)

	items, err := store.ListItems(ctx, types.WorkItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.NotEmpty(t, item.ID)
		assert.Equal(t, "github", item.SourceName)
	}
}

func TestSyncContentFollowsRemote(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("1", "New title", types.StatusPending),
	}}
	source.items[0].Description = "new body"
	source.items[0].Labels = []string{"bug"}
	s, store, _ := newTestSyncer(source, nil)

	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-1", Title: "Old title", Description: "old body",
		SourceName: "github", ExternalID: "1", Status: types.StatusReady,
	}))

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	item, err := store.GetItem(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, "New title", item.Title)
	assert.Equal(t, "new body", item.Description)
	assert.Equal(t, []string{"bug"}, item.Labels)
	assert.Equal(t, types.StatusReady, item.Status, "local status wins")
}

func TestSyncPendingAdoptsRemoteStatus(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("1", "Item", types.StatusReady),
	}}
	s, store, _ := newTestSyncer(source, nil)

	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-1", Title: "Item",
		SourceName: "github", ExternalID: "1", Status: types.StatusPending,
	}))

	_, err := s.Sync(ctx)
	require.NoError(t, err)

	item, err := store.GetItem(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusReady, item.Status)
	assert.Empty(t, source.pushed, "agreeing statuses need no push")
}

func TestSyncStatusPushBack(t *testing.T) {
	ctx := context.Background()
	// Remote issue #42 carries only the bug label, so its derived status is
	// pending; the local item is mid-work.
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("42", "Fix crash", types.StatusPending),
	}}
	source.items[0].Labels = []string{"bug"}
	s, store, _ := newTestSyncer(source, nil)

	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-42", Title: "Fix crash",
		SourceName: "github", ExternalID: "42", Status: types.StatusInProgress,
	}))

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StatusesPushed)

	item, err := store.GetItem(ctx, "local-42")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, item.Status)

	require.Len(t, source.pushed, 1)
	assert.Equal(t, types.StatusInProgress, source.pushed[0].Status)
	assert.Equal(t, []string{"bug"}, source.pushed[0].Labels)
}

func TestSyncBlockedPushPostsQuestions(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("42", "Fix crash", types.StatusPending),
	}}
	s, store, _ := newTestSyncer(source, nil)

	prev := types.StatusReady
	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-42", Title: "Fix crash",
		SourceName: "github", ExternalID: "42",
		Status: types.StatusBlocked, PreviousStatus: &prev,
	}))
	require.NoError(t, store.CreateQuestion(ctx, &types.BlockedQuestion{
		ID: "q1", WorkItemID: "local-42", Question: "Which database is affected?",
	}))
	answered := "yes"
	require.NoError(t, store.CreateQuestion(ctx, &types.BlockedQuestion{
		ID: "q2", WorkItemID: "local-42", Question: "Already settled?", Answer: &answered,
	}))

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StatusesPushed)

	require.Len(t, source.comments, 1)
	assert.Contains(t, source.comments[0], "Which database is affected?")
	assert.NotContains(t, source.comments[0], "Already settled?", "answered questions are omitted")
}

func TestSyncRemovesVanishedItems(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{}
	s, store, _ := newTestSyncer(source, nil)

	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-1", Title: "Gone upstream",
		SourceName: "github", ExternalID: "9", Status: types.StatusPending,
	}))
	// Items from other sources are untouched.
	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-2", Title: "Manual item", Status: types.StatusPending,
	}))

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	_, err = store.GetItem(ctx, "local-1")
	assert.Error(t, err)
	_, err = store.GetItem(ctx, "local-2")
	assert.NoError(t, err)
}

func TestSyncSkipsLockedItems(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{items: []*types.WorkItem{
		remoteItem("1", "Remote title", types.StatusPending),
	}}
	s, store, _ := newTestSyncer(source, fixedLock{"local-1": true})

	require.NoError(t, store.CreateItem(ctx, &types.WorkItem{
		ID: "local-1", Title: "Local title",
		SourceName: "github", ExternalID: "1", Status: types.StatusInProgress,
	}))

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Updated)

	item, err := store.GetItem(ctx, "local-1")
	require.NoError(t, err)
	assert.Equal(t, "Local title", item.Title, "locked items are untouched")
}

func TestSyncFailureLeavesLastSyncTimeUnset(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{syncErr: errors.New("boom")}
	s, _, cfg := newTestSyncer(source, nil)

	result, err := s.Sync(ctx)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.ErrorMessage, "boom")

	settings, err := cfg.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, settings.LastSyncTime)
}

func TestSyncSuccessRecordsLastSyncTime(t *testing.T) {
	ctx := context.Background()
	s, _, cfg := newTestSyncer(&fakeSource{}, nil)

	_, err := s.Sync(ctx)
	require.NoError(t, err)

	settings, err := cfg.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, settings.LastSyncTime)
}

func TestSyncSingleFlight(t *testing.T) {
	s, _, _ := newTestSyncer(&fakeSource{}, nil)
	s.syncing.Store(true)

	result, err := s.Sync(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, result, "concurrent invocation returns immediately")
}
