// Package orchestrator runs the background work loop: on each tick it gates
// on quiet hours and the daily token budget, asks the resolver for one ready
// item, drives it through its next transformation, and commits completed
// work to git. One item per tick, one tick at a time.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elephantgerald/bartleby-sub001/internal/ai"
	"github.com/elephantgerald/bartleby-sub001/internal/config"
	"github.com/elephantgerald/bartleby-sub001/internal/debug"
	"github.com/elephantgerald/bartleby-sub001/internal/eventbus"
	"github.com/elephantgerald/bartleby-sub001/internal/executor"
	"github.com/elephantgerald/bartleby-sub001/internal/gitops"
	"github.com/elephantgerald/bartleby-sub001/internal/graph"
	"github.com/elephantgerald/bartleby-sub001/internal/resolver"
	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Stats is a snapshot of the loop's counters.
type Stats struct {
	State              State      `json:"state"`
	WorkItemsCompleted int        `json:"work_items_completed"`
	WorkItemsFailed    int        `json:"work_items_failed"`
	WorkItemsBlocked   int        `json:"work_items_blocked"`
	CurrentWorkItemID  string     `json:"current_work_item_id,omitempty"`
	NextCycleAt        *time.Time `json:"next_cycle_at,omitempty"`
}

// Orchestrator is the background work loop.
type Orchestrator struct {
	store  storage.Storage
	cfg    *config.Manager
	graphs *graph.Store
	exec   *executor.Executor
	git    gitops.Service
	bus    *eventbus.Bus

	locks   *ItemLock
	trigger chan struct{}
	ticking atomic.Bool
	now     func() time.Time

	mu    sync.Mutex
	state State
	stats Stats
}

// New creates an orchestrator. git may be nil to disable git integration.
func New(store storage.Storage, cfg *config.Manager, graphs *graph.Store, exec *executor.Executor, git gitops.Service, bus *eventbus.Bus) *Orchestrator {
	return &Orchestrator{
		store:   store,
		cfg:     cfg,
		graphs:  graphs,
		exec:    exec,
		git:     git,
		bus:     bus,
		locks:   NewItemLock(),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
		state:   StateStopped,
	}
}

// SetClock overrides the time source for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Locks exposes the item lock set for the syncer.
func (o *Orchestrator) Locks() *ItemLock {
	return o.locks
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Statistics returns a snapshot of the loop's counters.
func (o *Orchestrator) Statistics() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.stats
	out.State = o.state
	return out
}

// Trigger wakes the loop before its next scheduled tick. Non-blocking; a
// pending trigger coalesces with later ones.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled. In-flight work completes
// before the loop stops.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.setState(ctx, StateStarting)

	settings, err := o.cfg.Get(ctx)
	if err != nil {
		o.setState(ctx, StateStopped)
		return fmt.Errorf("orchestrator: failed to load settings: %w", err)
	}

	o.setState(ctx, StateIdle)
	timer := time.NewTimer(settings.Orchestrator.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			o.setState(context.WithoutCancel(ctx), StateStopping)
			o.setState(context.WithoutCancel(ctx), StateStopped)
			return ctx.Err()
		case <-timer.C:
		case <-o.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		o.Tick(ctx)

		settings, err = o.cfg.Get(ctx)
		interval := 5 * time.Minute
		if err == nil {
			interval = settings.Orchestrator.Interval()
		}
		next := o.now().Add(interval)
		o.mu.Lock()
		o.stats.NextCycleAt = &next
		o.mu.Unlock()
		timer.Reset(interval)
	}
}

// Tick runs one cycle of the loop. Concurrent ticks are excluded by a guard
// flag; a tick arriving while one runs is dropped.
func (o *Orchestrator) Tick(ctx context.Context) {
	if !o.ticking.CompareAndSwap(false, true) {
		return
	}
	defer o.ticking.Store(false)

	if err := o.tick(ctx); err != nil && ctx.Err() == nil {
		debug.Logf("orchestrator: tick error: %v\n", err)
	}
}

func (o *Orchestrator) tick(ctx context.Context) error {
	settings, err := o.cfg.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.Orchestrator.Enabled {
		return nil
	}

	now := o.now()

	// Budget day rollover, at most once per local day.
	if settings.TokenBudget.ResetIfNewDay(now) {
		settings, err = o.cfg.Update(ctx, func(s *config.AppSettings) {
			s.TokenBudget.ResetIfNewDay(now)
		})
		if err != nil {
			return err
		}
	}

	if settings.QuietHours.Contains(now) {
		o.setState(ctx, StateQuietHours)
		return nil
	}
	if settings.TokenBudget.Exhausted() {
		o.setState(ctx, StateBudgetExhausted)
		return nil
	}
	o.setState(ctx, StateIdle)

	item, err := o.nextReadyItem(ctx)
	if err != nil || item == nil {
		return err
	}

	o.setState(ctx, StateWorking)
	o.mu.Lock()
	o.stats.CurrentWorkItemID = item.ID
	o.mu.Unlock()

	o.locks.Lock(item.ID)
	defer func() {
		o.locks.Unlock(item.ID)
		o.mu.Lock()
		o.stats.CurrentWorkItemID = ""
		o.mu.Unlock()
		o.setState(context.WithoutCancel(ctx), StateIdle)
	}()

	err = o.processItem(ctx, item, settings)
	if err != nil && ctx.Err() == nil {
		debug.Logf("orchestrator: item %s: %v\n", item.ID, err)
	}
	return err
}

// nextReadyItem resolves readiness over the current graph snapshot and pops
// the first ready item.
func (o *Orchestrator) nextReadyItem(ctx context.Context) (*types.WorkItem, error) {
	items, err := o.store.ListItems(ctx, types.WorkItemFilter{})
	if err != nil {
		return nil, err
	}

	var g *graph.Graph
	if o.graphs != nil {
		g = o.graphs.Graph()
	} else {
		g = graph.New()
	}

	ready := resolver.New(g, items).GetReadyItems()
	if len(ready) == 0 {
		return nil, nil
	}
	return ready[0], nil
}

// processItem drives one transformation for the item and applies the result:
// status bookkeeping, token accounting, retry policy, and git on completion.
func (o *Orchestrator) processItem(ctx context.Context, item *types.WorkItem, settings *config.AppSettings) error {
	next, err := o.exec.GetNextTransformation(ctx, item.ID)
	if err != nil {
		return err
	}
	if next == "" {
		return nil
	}

	if err := o.markStatus(ctx, item, types.StatusInProgress); err != nil {
		return err
	}

	wc, err := o.exec.BuildContext(ctx, item.ID, next)
	if err != nil {
		return err
	}
	if wc == nil {
		return fmt.Errorf("item %s vanished before execution", item.ID)
	}

	result, execErr := o.exec.Execute(ctx, wc)
	if execErr != nil {
		return o.handleExecutionFailure(ctx, item, settings, execErr)
	}

	if result.TokensUsed > 0 {
		if _, err := o.cfg.Update(ctx, func(s *config.AppSettings) {
			s.TokenBudget.TokensUsedToday += result.TokensUsed
		}); err != nil {
			debug.Logf("orchestrator: failed to record token usage: %v\n", err)
		}
	}

	// The executor wrote the item through wc.Item; continue from its state.
	item = wc.Item
	switch item.Status {
	case types.StatusComplete:
		o.bumpCounter(func(s *Stats) { s.WorkItemsCompleted++ })
		if err := o.commitCompletedWork(ctx, item, result, settings); err != nil {
			debug.Logf("orchestrator: git integration for %s: %v\n", item.ID, err)
		}
	case types.StatusBlocked:
		o.bumpCounter(func(s *Stats) { s.WorkItemsBlocked++ })
	case types.StatusInProgress:
		// Mid-chain or model-level failure; hand the item back to the
		// scheduler, demoting to Failed when retries are spent.
		if result.Outcome == ai.OutcomeFailed && item.AttemptCount >= settings.Orchestrator.MaxRetryAttempts {
			o.bumpCounter(func(s *Stats) { s.WorkItemsFailed++ })
			return o.markStatus(ctx, item, types.StatusFailed)
		}
		return o.markStatus(ctx, item, types.StatusReady)
	}
	return nil
}

// handleExecutionFailure applies the retry policy after a transport-level
// failure (retry exhaustion, cancellation). The session is already closed by
// the executor; only the item's disposition remains.
func (o *Orchestrator) handleExecutionFailure(ctx context.Context, item *types.WorkItem, settings *config.AppSettings, execErr error) error {
	ctx = context.WithoutCancel(ctx)

	current, err := o.store.GetItem(ctx, item.ID)
	if err != nil {
		return err
	}
	current.AttemptCount++
	current.ErrorMessage = execErr.Error()

	status := types.StatusReady
	if current.AttemptCount >= settings.Orchestrator.MaxRetryAttempts {
		status = types.StatusFailed
		o.bumpCounter(func(s *Stats) { s.WorkItemsFailed++ })
	}
	oldStatus := current.Status
	current.Status = status
	current.PreviousStatus = nil

	if err := o.store.UpdateItem(ctx, current); err != nil {
		return err
	}
	o.emitStatusChange(ctx, current.ID, oldStatus, status)
	return execErr
}

// commitCompletedWork creates the item's branch, commits, optionally pushes,
// and records the branch and commit sha.
func (o *Orchestrator) commitCompletedWork(ctx context.Context, item *types.WorkItem, result *ai.WorkResult, settings *config.AppSettings) error {
	if o.git == nil || !settings.Git.AutoCommit || settings.Git.WorkingDirectory == "" {
		return nil
	}
	dir := settings.Git.WorkingDirectory
	if !o.git.IsGitRepository(ctx, dir) {
		return fmt.Errorf("%s is not a git repository", dir)
	}

	branch, err := o.git.CreateOrSwitchToBranch(ctx, item, dir)
	if err != nil {
		return err
	}

	commit, err := o.git.CommitChanges(ctx, item, result, dir)
	if err != nil {
		return err
	}
	if commit.HasConflicts {
		return fmt.Errorf("merge conflicts in %v", commit.ConflictingFiles)
	}

	item.BranchName = branch.BranchName
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return err
	}

	if commit.CommitSha != "" {
		if err := o.recordCommitSha(ctx, item.ID, commit.CommitSha); err != nil {
			debug.Logf("orchestrator: failed to record commit sha: %v\n", err)
		}
	}

	if settings.Git.AutoPush {
		if _, err := o.git.Push(ctx, dir, settings.Git.Remote); err != nil {
			return err
		}
	}
	return nil
}

// recordCommitSha stamps the sha on the item's most recent session.
func (o *Orchestrator) recordCommitSha(ctx context.Context, itemID, sha string) error {
	sessions, err := o.store.GetSessionsForItem(ctx, itemID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	last := sessions[len(sessions)-1]
	last.CommitSha = sha
	return o.store.UpdateSession(ctx, last)
}

func (o *Orchestrator) markStatus(ctx context.Context, item *types.WorkItem, status types.Status) error {
	if item.Status == status {
		return nil
	}
	oldStatus := item.Status
	item.Status = status
	if status != types.StatusBlocked {
		item.PreviousStatus = nil
	}
	if err := o.store.UpdateItem(ctx, item); err != nil {
		return err
	}
	o.emitStatusChange(ctx, item.ID, oldStatus, status)
	return nil
}

func (o *Orchestrator) emitStatusChange(ctx context.Context, itemID string, from, to types.Status) {
	if o.bus == nil {
		return
	}
	_ = o.bus.Dispatch(context.WithoutCancel(ctx), &eventbus.Event{
		Type:       eventbus.EventWorkItemStatusChanged,
		WorkItemID: itemID,
		OldStatus:  string(from),
		NewStatus:  string(to),
	})
}

func (o *Orchestrator) bumpCounter(fn func(*Stats)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.stats)
}

// setState transitions the lifecycle state, emitting StateChanged when it
// actually changes. Same-state transitions are no-ops.
func (o *Orchestrator) setState(ctx context.Context, next State) {
	o.mu.Lock()
	prev := o.state
	if prev == next {
		o.mu.Unlock()
		return
	}
	o.state = next
	o.mu.Unlock()

	if o.bus != nil {
		_ = o.bus.Dispatch(context.WithoutCancel(ctx), &eventbus.Event{
			Type:     eventbus.EventStateChanged,
			OldState: string(prev),
			NewState: string(next),
		})
	}
}
