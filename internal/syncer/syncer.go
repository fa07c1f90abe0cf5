// Package syncer reconciles the local store with an external tracker in both
// directions: remote content wins, local status wins (except Pending), and
// bartleby-managed statuses are pushed back to the tracker.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/debug"
	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/tracker"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// ItemLocker reports whether an item is currently held by the work loop.
// Locked items are skipped during reconciliation so the two never race.
type ItemLocker interface {
	IsLocked(id string) bool
}

// Syncer performs two-way reconciliation runs. At most one run is active at
// a time; concurrent invocations return immediately.
type Syncer struct {
	store  storage.Storage
	source tracker.Source
	cfg    *config.Manager
	bus    *eventbus.Bus
	locks  ItemLocker // optional

	syncing atomic.Bool
	now     func() time.Time
}

// New creates a syncer. locks may be nil when no work loop is running.
func New(store storage.Storage, source tracker.Source, cfg *config.Manager, bus *eventbus.Bus, locks ItemLocker) *Syncer {
	return &Syncer{
		store:  store,
		source: source,
		cfg:    cfg,
		bus:    bus,
		locks:  locks,
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (s *Syncer) SetClock(now func() time.Time) {
	s.now = now
}

// Sync runs one reconciliation. Returns (nil, nil) when another run is
// already in flight. Partial progress on failure is not rolled back; it is
// journaled through the emitted events. LastSyncTime advances only on
// success.
func (s *Syncer) Sync(ctx context.Context) (*types.SyncResult, error) {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil, nil
	}
	defer s.syncing.Store(false)

	result := &types.SyncResult{StartedAt: s.now()}
	s.emit(ctx, &eventbus.Event{Type: eventbus.EventSyncStarted})

	err := s.run(ctx, result)
	result.FinishedAt = s.now()
	result.Success = err == nil
	if err != nil {
		result.ErrorMessage = err.Error()
	}

	s.emit(ctx, &eventbus.Event{
		Type:           eventbus.EventSyncCompleted,
		Added:          result.Added,
		Updated:        result.Updated,
		Removed:        result.Removed,
		StatusesPushed: result.StatusesPushed,
		Error:          result.ErrorMessage,
	})

	if err != nil {
		return result, fmt.Errorf("sync failed: %w", err)
	}

	if err := s.recordSyncTime(ctx, result.FinishedAt); err != nil {
		debug.Logf("syncer: failed to record sync time: %v\n", err)
	}
	return result, nil
}

func (s *Syncer) run(ctx context.Context, result *types.SyncResult) error {
	remote, err := s.source.Sync(ctx)
	if err != nil {
		return err
	}

	local, err := s.store.ListItems(ctx, types.WorkItemFilter{SourceName: s.source.Name()})
	if err != nil {
		return err
	}
	localByExternal := make(map[string]*types.WorkItem, len(local))
	for _, l := range local {
		localByExternal[l.ExternalID] = l
	}

	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[r.ExternalID] = true

		l, exists := localByExternal[r.ExternalID]
		if !exists {
			if err := s.insert(ctx, r); err != nil {
				return err
			}
			result.Added++
			continue
		}

		if s.locked(l.ID) {
			continue
		}

		pushed, err := s.merge(ctx, l, r)
		if err != nil {
			return err
		}
		result.Updated++
		if pushed {
			result.StatusesPushed++
		}
	}

	for _, l := range local {
		if seen[l.ExternalID] || s.locked(l.ID) {
			continue
		}
		if err := s.store.DeleteItem(ctx, l.ID); err != nil {
			return err
		}
		result.Removed++
		s.emit(ctx, &eventbus.Event{
			Type:       eventbus.EventItemSynced,
			WorkItemID: l.ID,
			SyncAction: string(types.SyncRemoved),
		})
	}

	return nil
}

// insert creates a local item for a remote object seen for the first time.
func (s *Syncer) insert(ctx context.Context, r *types.WorkItem) error {
	item := *r
	item.ID = uuid.NewString()
	item.SetDefaults()
	if err := s.store.CreateItem(ctx, &item); err != nil {
		return fmt.Errorf("failed to insert %s: %w", item.ExternalKey(), err)
	}
	s.emit(ctx, &eventbus.Event{
		Type:       eventbus.EventItemSynced,
		WorkItemID: item.ID,
		SyncAction: string(types.SyncAdded),
	})
	return nil
}

// merge reconciles one matched pair. Content (title, description, labels)
// follows the remote; status follows the local item unless it is still
// Pending, in which case the remote's label-derived status wins. When the
// merged status disagrees with the remote and is bartleby-managed it is
// pushed back. Reports whether a push happened.
func (s *Syncer) merge(ctx context.Context, l, r *types.WorkItem) (bool, error) {
	oldStatus := l.Status

	l.Title = r.Title
	l.Description = r.Description
	l.Labels = r.Labels
	l.ExternalURL = r.ExternalURL

	if l.Status == types.StatusPending {
		l.Status = r.Status
		l.PreviousStatus = nil
		if l.Status == types.StatusBlocked {
			// A blocked status cannot arrive from labels without a prior
			// local block; restore the invariant rather than trust it.
			l.Status = types.StatusPending
		}
	}

	pushed := false
	if l.Status != r.Status && l.Status.Managed() {
		if err := s.source.UpdateStatus(ctx, l); err != nil {
			return false, fmt.Errorf("failed to push status for %s: %w", l.ExternalKey(), err)
		}
		pushed = true

		// A freshly pushed blocked status carries its open questions to the
		// tracker as a comment. The push happens only while the statuses
		// disagree, so the comment is posted once per block.
		if l.Status == types.StatusBlocked {
			if err := s.postQuestions(ctx, l); err != nil {
				debug.Logf("syncer: failed to post questions for %s: %v\n", l.ExternalKey(), err)
			}
		}
	}

	if err := s.store.UpdateItem(ctx, l); err != nil {
		return false, fmt.Errorf("failed to update %s: %w", l.ExternalKey(), err)
	}

	s.emit(ctx, &eventbus.Event{
		Type:       eventbus.EventItemSynced,
		WorkItemID: l.ID,
		OldStatus:  string(oldStatus),
		NewStatus:  string(l.Status),
		SyncAction: string(types.SyncUpdated),
	})
	if pushed {
		s.emit(ctx, &eventbus.Event{
			Type:       eventbus.EventItemSynced,
			WorkItemID: l.ID,
			SyncAction: string(types.SyncStatusPushed),
		})
	}
	return pushed, nil
}

// postQuestions writes the item's unanswered questions to the tracker as a
// single comment.
func (s *Syncer) postQuestions(ctx context.Context, item *types.WorkItem) error {
	questions, err := s.store.GetQuestionsForItem(ctx, item.ID)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, q := range questions {
		if q.IsAnswered() {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", q.Question)
	}
	if b.Len() == 0 {
		return nil
	}
	body := "Bartleby is blocked on the following questions:\n\n" + b.String()
	return s.source.AddComment(ctx, item, body)
}

func (s *Syncer) locked(id string) bool {
	return s.locks != nil && s.locks.IsLocked(id)
}

func (s *Syncer) recordSyncTime(ctx context.Context, t time.Time) error {
	if s.cfg == nil {
		return nil
	}
	_, err := s.cfg.Update(ctx, func(settings *config.AppSettings) {
		settings.LastSyncTime = &t
	})
	return err
}

func (s *Syncer) emit(ctx context.Context, event *eventbus.Event) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Dispatch(context.WithoutCancel(ctx), event)
}
