// Package memory provides an in-memory Storage backend.
//
// It backs unit tests and the --no-db mode; the durable backend is sqlite.
// All reads and writes copy, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Store is an in-memory implementation of storage.Storage.
type Store struct {
	mu        sync.RWMutex
	items     map[string]*types.WorkItem
	external  map[string]string // "source:extid" -> item id
	questions map[string]*types.BlockedQuestion
	sessions  map[string]*types.WorkSession
	config    map[string]string
	now       func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		items:     make(map[string]*types.WorkItem),
		external:  make(map[string]string),
		questions: make(map[string]*types.BlockedQuestion),
		sessions:  make(map[string]*types.WorkSession),
		config:    make(map[string]string),
		now:       time.Now,
	}
}

// SetClock overrides the store's clock. Tests use this to control
// CreatedAt/UpdatedAt stamping.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func externalKey(source, extID string) string {
	return source + ":" + extID
}

func cloneItem(item *types.WorkItem) *types.WorkItem {
	out := *item
	out.Dependencies = append([]string(nil), item.Dependencies...)
	out.Labels = append([]string(nil), item.Labels...)
	if item.PreviousStatus != nil {
		prev := *item.PreviousStatus
		out.PreviousStatus = &prev
	}
	if item.LastWorkedAt != nil {
		t := *item.LastWorkedAt
		out.LastWorkedAt = &t
	}
	return &out
}

func cloneQuestion(q *types.BlockedQuestion) *types.BlockedQuestion {
	out := *q
	if q.Answer != nil {
		a := *q.Answer
		out.Answer = &a
	}
	if q.AnsweredAt != nil {
		t := *q.AnsweredAt
		out.AnsweredAt = &t
	}
	return &out
}

func cloneSession(ws *types.WorkSession) *types.WorkSession {
	out := *ws
	out.ModifiedFiles = append([]string(nil), ws.ModifiedFiles...)
	if ws.EndedAt != nil {
		t := *ws.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// CreateItem inserts a work item, stamping CreatedAt/UpdatedAt when unset
// and enforcing external reference uniqueness.
func (s *Store) CreateItem(ctx context.Context, item *types.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		return fmt.Errorf("work item id is required")
	}
	if _, exists := s.items[item.ID]; exists {
		return fmt.Errorf("work item %s already exists", item.ID)
	}
	if item.HasExternalRef() {
		key := externalKey(item.SourceName, item.ExternalID)
		if _, exists := s.external[key]; exists {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateExternalRef, key)
		}
		s.external[key] = item.ID
	}

	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() || item.UpdatedAt.Before(item.CreatedAt) {
		item.UpdatedAt = item.CreatedAt
	}

	s.items[item.ID] = cloneItem(item)
	return nil
}

// GetItem retrieves a work item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("work item %s: %w", id, storage.ErrNotFound)
	}
	return cloneItem(item), nil
}

// GetItemByExternalRef retrieves a work item by its tracker binding.
func (s *Store) GetItemByExternalRef(ctx context.Context, sourceName, externalID string) (*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.external[externalKey(sourceName, externalID)]
	if !ok {
		return nil, fmt.Errorf("external ref %s:%s: %w", sourceName, externalID, storage.ErrNotFound)
	}
	return cloneItem(s.items[id]), nil
}

// ListItems returns items matching the filter, ordered by ascending
// CreatedAt with a stable tie-break on id.
func (s *Store) ListItems(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.WorkItem
	for _, item := range s.items {
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		if filter.SourceName != "" && item.SourceName != filter.SourceName {
			continue
		}
		if !hasAllLabels(item.Labels, filter.Labels) {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func hasAllLabels(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// UpdateItem replaces a work item, bumping UpdatedAt and maintaining the
// external reference index.
func (s *Store) UpdateItem(ctx context.Context, item *types.WorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.items[item.ID]
	if !ok {
		return fmt.Errorf("work item %s: %w", item.ID, storage.ErrNotFound)
	}

	if old.HasExternalRef() {
		delete(s.external, externalKey(old.SourceName, old.ExternalID))
	}
	if item.HasExternalRef() {
		key := externalKey(item.SourceName, item.ExternalID)
		if other, exists := s.external[key]; exists && other != item.ID {
			// restore the old binding before failing
			if old.HasExternalRef() {
				s.external[externalKey(old.SourceName, old.ExternalID)] = old.ID
			}
			return fmt.Errorf("%w: %s", storage.ErrDuplicateExternalRef, key)
		}
		s.external[key] = item.ID
	}

	item.CreatedAt = old.CreatedAt
	item.UpdatedAt = s.now()
	if item.UpdatedAt.Before(item.CreatedAt) {
		item.UpdatedAt = item.CreatedAt
	}
	s.items[item.ID] = cloneItem(item)
	return nil
}

// DeleteItem removes a work item along with its questions and the external
// reference binding. Sessions are provenance and survive deletion.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("work item %s: %w", id, storage.ErrNotFound)
	}
	if item.HasExternalRef() {
		delete(s.external, externalKey(item.SourceName, item.ExternalID))
	}
	delete(s.items, id)
	for qid, q := range s.questions {
		if q.WorkItemID == id {
			delete(s.questions, qid)
		}
	}
	return nil
}

// CreateQuestion inserts a blocked question, stamping CreatedAt when unset.
func (s *Store) CreateQuestion(ctx context.Context, q *types.BlockedQuestion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		return fmt.Errorf("question id is required")
	}
	if _, exists := s.questions[q.ID]; exists {
		return fmt.Errorf("question %s already exists", q.ID)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	s.questions[q.ID] = cloneQuestion(q)
	return nil
}

// GetQuestion retrieves a blocked question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*types.BlockedQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %s: %w", id, storage.ErrNotFound)
	}
	return cloneQuestion(q), nil
}

// GetQuestionsForItem returns every question for an item, oldest first.
func (s *Store) GetQuestionsForItem(ctx context.Context, itemID string) ([]*types.BlockedQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.BlockedQuestion
	for _, q := range s.questions {
		if q.WorkItemID == itemID {
			out = append(out, cloneQuestion(q))
		}
	}
	sortQuestions(out)
	return out, nil
}

// ListUnansweredQuestions returns every open question, oldest first.
func (s *Store) ListUnansweredQuestions(ctx context.Context) ([]*types.BlockedQuestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.BlockedQuestion
	for _, q := range s.questions {
		if !q.IsAnswered() {
			out = append(out, cloneQuestion(q))
		}
	}
	sortQuestions(out)
	return out, nil
}

func sortQuestions(qs []*types.BlockedQuestion) {
	sort.Slice(qs, func(i, j int) bool {
		if qs[i].CreatedAt.Equal(qs[j].CreatedAt) {
			return qs[i].ID < qs[j].ID
		}
		return qs[i].CreatedAt.Before(qs[j].CreatedAt)
	})
}

// AnswerQuestion records an answer, stamping AnsweredAt.
func (s *Store) AnswerQuestion(ctx context.Context, id, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return fmt.Errorf("question %s: %w", id, storage.ErrNotFound)
	}
	if q.IsAnswered() {
		return fmt.Errorf("question %s: %w", id, storage.ErrAlreadyAnswered)
	}
	now := s.now()
	q.Answer = &answer
	q.AnsweredAt = &now
	return nil
}

// CreateSession appends a work session, stamping StartedAt when unset.
func (s *Store) CreateSession(ctx context.Context, ws *types.WorkSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if _, exists := s.sessions[ws.ID]; exists {
		return fmt.Errorf("session %s already exists", ws.ID)
	}
	if ws.StartedAt.IsZero() {
		ws.StartedAt = s.now()
	}
	s.sessions[ws.ID] = cloneSession(ws)
	return nil
}

// UpdateSession replaces a session row.
func (s *Store) UpdateSession(ctx context.Context, ws *types.WorkSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ws.ID]; !ok {
		return fmt.Errorf("session %s: %w", ws.ID, storage.ErrNotFound)
	}
	s.sessions[ws.ID] = cloneSession(ws)
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.WorkSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return cloneSession(ws), nil
}

// GetSessionsForItem returns the sessions for an item ordered by StartedAt.
func (s *Store) GetSessionsForItem(ctx context.Context, itemID string) ([]*types.WorkSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.WorkSession
	for _, ws := range s.sessions {
		if ws.WorkItemID == itemID {
			out = append(out, cloneSession(ws))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// GetConfig retrieves a configuration value.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	if !ok {
		return "", fmt.Errorf("config %s: %w", key, storage.ErrNotFound)
	}
	return v, nil
}

// SetConfig stores a configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

// GetAllConfig returns a copy of every configuration key/value.
func (s *Store) GetAllConfig(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.config))
	for k, v := range s.config {
		out[k] = v
	}
	return out, nil
}

// GetStatistics computes aggregate counts over the store.
func (s *Store) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &types.Statistics{TotalItems: len(s.items)}
	for _, item := range s.items {
		switch item.Status {
		case types.StatusPending:
			stats.PendingItems++
		case types.StatusReady:
			stats.ReadyItems++
		case types.StatusInProgress:
			stats.InProgressItems++
		case types.StatusBlocked:
			stats.BlockedItems++
		case types.StatusComplete:
			stats.CompleteItems++
		case types.StatusFailed:
			stats.FailedItems++
		}
	}
	for _, q := range s.questions {
		if !q.IsAnswered() {
			stats.OpenQuestions++
		}
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
