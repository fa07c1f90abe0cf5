// Package sqlite implements storage.Storage over a local sqlite database
// using the pure-Go ncruces driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/elephantgerald/bartleby-sub001/internal/storage"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

//go:embed schema.sql
var schema string

// itemColumns is the column list for work item queries, matching scanItem.
const itemColumns = `id, title, description, status, previous_status,
	source_name, external_id, external_url, dependencies, labels,
	created_at, updated_at, last_worked_at, attempt_count, branch_name, error_message`

// Store is the sqlite implementation of storage.Storage.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Storage = (*Store)(nil)

// Open opens (creating if necessary) the database at path and applies the
// schema. The schema is idempotent, so opening an existing database is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under the cooperative single-process model.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func marshalList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// CreateItem inserts a work item, stamping CreatedAt/UpdatedAt when unset.
func (s *Store) CreateItem(ctx context.Context, item *types.WorkItem) error {
	if item.ID == "" {
		return fmt.Errorf("work item id is required")
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() || item.UpdatedAt.Before(item.CreatedAt) {
		item.UpdatedAt = item.CreatedAt
	}

	var prev sql.NullString
	if item.PreviousStatus != nil {
		prev = sql.NullString{String: string(*item.PreviousStatus), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO work_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Description, string(item.Status), prev,
		item.SourceName, item.ExternalID, item.ExternalURL,
		marshalList(item.Dependencies), marshalList(item.Labels),
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
		formatTimePtr(item.LastWorkedAt), item.AttemptCount, item.BranchName, item.ErrorMessage,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") && item.HasExternalRef() {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateExternalRef, item.ExternalKey())
		}
		return fmt.Errorf("inserting work item: %w", err)
	}
	return nil
}

func scanItem(scanner interface{ Scan(...any) error }) (*types.WorkItem, error) {
	var item types.WorkItem
	var status string
	var prev, lastWorked sql.NullString
	var created, updated, deps, labels string

	err := scanner.Scan(
		&item.ID, &item.Title, &item.Description, &status, &prev,
		&item.SourceName, &item.ExternalID, &item.ExternalURL, &deps, &labels,
		&created, &updated, &lastWorked, &item.AttemptCount, &item.BranchName, &item.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	item.Status = types.Status(status)
	if prev.Valid {
		p := types.Status(prev.String)
		item.PreviousStatus = &p
	}
	item.Dependencies = unmarshalList(deps)
	item.Labels = unmarshalList(labels)
	if item.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if lastWorked.Valid {
		t, err := parseTime(lastWorked.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_worked_at: %w", err)
		}
		item.LastWorkedAt = &t
	}
	return &item, nil
}

// GetItem retrieves a work item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work item %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying work item: %w", err)
	}
	return item, nil
}

// GetItemByExternalRef retrieves a work item by its tracker binding.
func (s *Store) GetItemByExternalRef(ctx context.Context, sourceName, externalID string) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE source_name = ? AND external_id = ?`,
		sourceName, externalID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("external ref %s:%s: %w", sourceName, externalID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying work item by external ref: %w", err)
	}
	return item, nil
}

// ListItems returns items matching the filter, ordered by ascending
// CreatedAt with a stable tie-break on id. Label filtering happens in
// memory because labels live in a JSON column.
func (s *Store) ListItems(ctx context.Context, filter types.WorkItemFilter) ([]*types.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items`
	var conds []string
	var args []any
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.SourceName != "" {
		conds = append(conds, "source_name = ?")
		args = append(args, filter.SourceName)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing work items: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning work item: %w", err)
		}
		if !hasAllLabels(item.Labels, filter.Labels) {
			continue
		}
		out = append(out, item)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
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

// UpdateItem replaces a work item row, bumping UpdatedAt. CreatedAt is
// immutable and not written.
func (s *Store) UpdateItem(ctx context.Context, item *types.WorkItem) error {
	item.UpdatedAt = s.now()

	var prev sql.NullString
	if item.PreviousStatus != nil {
		prev = sql.NullString{String: string(*item.PreviousStatus), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `UPDATE work_items SET
		title = ?, description = ?, status = ?, previous_status = ?,
		source_name = ?, external_id = ?, external_url = ?,
		dependencies = ?, labels = ?, updated_at = ?, last_worked_at = ?,
		attempt_count = ?, branch_name = ?, error_message = ?
		WHERE id = ?`,
		item.Title, item.Description, string(item.Status), prev,
		item.SourceName, item.ExternalID, item.ExternalURL,
		marshalList(item.Dependencies), marshalList(item.Labels),
		formatTime(item.UpdatedAt), formatTimePtr(item.LastWorkedAt),
		item.AttemptCount, item.BranchName, item.ErrorMessage,
		item.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") && item.HasExternalRef() {
			return fmt.Errorf("%w: %s", storage.ErrDuplicateExternalRef, item.ExternalKey())
		}
		return fmt.Errorf("updating work item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating work item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("work item %s: %w", item.ID, storage.ErrNotFound)
	}
	return nil
}

// DeleteItem removes a work item and its questions. Session rows are
// provenance and survive.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting work item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting work item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("work item %s: %w", id, storage.ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blocked_questions WHERE work_item_id = ?`, id); err != nil {
		return fmt.Errorf("deleting questions: %w", err)
	}
	return nil
}

// CreateQuestion inserts a blocked question, stamping CreatedAt when unset.
func (s *Store) CreateQuestion(ctx context.Context, q *types.BlockedQuestion) error {
	if q.ID == "" {
		return fmt.Errorf("question id is required")
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}

	var answer sql.NullString
	if q.Answer != nil {
		answer = sql.NullString{String: *q.Answer, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO blocked_questions
		(id, work_item_id, question, context, answer, created_at, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.WorkItemID, q.Question, q.Context, answer,
		formatTime(q.CreatedAt), formatTimePtr(q.AnsweredAt))
	if err != nil {
		return fmt.Errorf("inserting question: %w", err)
	}
	return nil
}

func scanQuestion(scanner interface{ Scan(...any) error }) (*types.BlockedQuestion, error) {
	var q types.BlockedQuestion
	var answer, answeredAt sql.NullString
	var created string

	err := scanner.Scan(&q.ID, &q.WorkItemID, &q.Question, &q.Context, &answer, &created, &answeredAt)
	if err != nil {
		return nil, err
	}
	if answer.Valid {
		a := answer.String
		q.Answer = &a
	}
	if q.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if answeredAt.Valid {
		t, err := parseTime(answeredAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing answered_at: %w", err)
		}
		q.AnsweredAt = &t
	}
	return &q, nil
}

const questionColumns = `id, work_item_id, question, context, answer, created_at, answered_at`

// GetQuestion retrieves a blocked question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*types.BlockedQuestion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM blocked_questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying question: %w", err)
	}
	return q, nil
}

func (s *Store) queryQuestions(ctx context.Context, query string, args ...any) ([]*types.BlockedQuestion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	var out []*types.BlockedQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetQuestionsForItem returns every question for an item, oldest first.
func (s *Store) GetQuestionsForItem(ctx context.Context, itemID string) ([]*types.BlockedQuestion, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM blocked_questions WHERE work_item_id = ? ORDER BY created_at ASC, id ASC`,
		itemID)
}

// ListUnansweredQuestions returns every open question, oldest first.
func (s *Store) ListUnansweredQuestions(ctx context.Context) ([]*types.BlockedQuestion, error) {
	return s.queryQuestions(ctx,
		`SELECT `+questionColumns+` FROM blocked_questions WHERE answer IS NULL ORDER BY created_at ASC, id ASC`)
}

// AnswerQuestion records an answer, stamping AnsweredAt. Answering twice
// fails with ErrAlreadyAnswered.
func (s *Store) AnswerQuestion(ctx context.Context, id, answer string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE blocked_questions SET answer = ?, answered_at = ? WHERE id = ? AND answer IS NULL`,
		answer, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}
	if n == 0 {
		if _, err := s.GetQuestion(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("question %s: %w", id, storage.ErrAlreadyAnswered)
	}
	return nil
}

const sessionColumns = `id, work_item_id, transformation, started_at, ended_at,
	outcome, summary, modified_files, commit_sha, tokens_used, error_message`

// CreateSession appends a work session row, stamping StartedAt when unset.
func (s *Store) CreateSession(ctx context.Context, ws *types.WorkSession) error {
	if ws.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if ws.StartedAt.IsZero() {
		ws.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO work_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.WorkItemID, string(ws.Transformation),
		formatTime(ws.StartedAt), formatTimePtr(ws.EndedAt),
		string(ws.Outcome), ws.Summary, marshalList(ws.ModifiedFiles),
		ws.CommitSha, ws.TokensUsed, ws.ErrorMessage)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// UpdateSession replaces a session row.
func (s *Store) UpdateSession(ctx context.Context, ws *types.WorkSession) error {
	result, err := s.db.ExecContext(ctx, `UPDATE work_sessions SET
		transformation = ?, ended_at = ?, outcome = ?, summary = ?,
		modified_files = ?, commit_sha = ?, tokens_used = ?, error_message = ?
		WHERE id = ?`,
		string(ws.Transformation), formatTimePtr(ws.EndedAt), string(ws.Outcome),
		ws.Summary, marshalList(ws.ModifiedFiles), ws.CommitSha, ws.TokensUsed,
		ws.ErrorMessage, ws.ID)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", ws.ID, storage.ErrNotFound)
	}
	return nil
}

func scanSession(scanner interface{ Scan(...any) error }) (*types.WorkSession, error) {
	var ws types.WorkSession
	var transformation, outcome, started, files string
	var ended sql.NullString

	err := scanner.Scan(&ws.ID, &ws.WorkItemID, &transformation, &started, &ended,
		&outcome, &ws.Summary, &files, &ws.CommitSha, &ws.TokensUsed, &ws.ErrorMessage)
	if err != nil {
		return nil, err
	}
	ws.Transformation = types.TransformationType(transformation)
	ws.Outcome = types.SessionOutcome(outcome)
	ws.ModifiedFiles = unmarshalList(files)
	if ws.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		ws.EndedAt = &t
	}
	return &ws, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*types.WorkSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM work_sessions WHERE id = ?`, id)
	ws, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return ws, nil
}

// GetSessionsForItem returns the sessions for an item ordered by StartedAt.
func (s *Store) GetSessionsForItem(ctx context.Context, itemID string) ([]*types.WorkSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM work_sessions WHERE work_item_id = ? ORDER BY started_at ASC, id ASC`,
		itemID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []*types.WorkSession
	for rows.Next() {
		ws, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// GetConfig retrieves a configuration value.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("config %s: %w", key, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying config: %w", err)
	}
	return value, nil
}

// SetConfig stores a configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("setting config: %w", err)
	}
	return nil
}

// GetAllConfig returns every configuration key/value.
func (s *Store) GetAllConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("listing config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// GetStatistics computes aggregate counts.
func (s *Store) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("querying statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning statistics: %w", err)
		}
		stats.TotalItems += count
		switch types.Status(status) {
		case types.StatusPending:
			stats.PendingItems = count
		case types.StatusReady:
			stats.ReadyItems = count
		case types.StatusInProgress:
			stats.InProgressItems = count
		case types.StatusBlocked:
			stats.BlockedItems = count
		case types.StatusComplete:
			stats.CompleteItems = count
		case types.StatusFailed:
			stats.FailedItems = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_questions WHERE answer IS NULL`).Scan(&stats.OpenQuestions)
	if err != nil {
		return nil, fmt.Errorf("counting open questions: %w", err)
	}
	return stats, nil
}
