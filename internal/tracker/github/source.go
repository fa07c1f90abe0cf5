package github

import (
	"context"
	"fmt"
	"strconv"

	"github.com/elephantgerald/bartleby-sub001/internal/tracker"
	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Source adapts the GitHub client to the tracker.Source port.
type Source struct {
	client *Client
}

// NewSource wraps a GitHub client as a tracker source.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

var _ tracker.Source = (*Source)(nil)

// Name returns the tracker identifier.
func (s *Source) Name() string {
	return SourceName
}

// Sync fetches the full issue snapshot (open and closed) and converts each
// issue to a work item. Pull requests are already filtered by the client.
func (s *Source) Sync(ctx context.Context) ([]*types.WorkItem, error) {
	issues, err := s.client.FetchIssues(ctx, "all")
	if err != nil {
		return nil, fmt.Errorf("github sync: %w", err)
	}

	items := make([]*types.WorkItem, 0, len(issues))
	for i := range issues {
		items = append(items, ItemFromIssue(&issues[i]))
	}
	return items, nil
}

// UpdateStatus pushes the item's status to its backing issue as labels plus
// the open/closed state.
func (s *Source) UpdateStatus(ctx context.Context, item *types.WorkItem) error {
	number, err := s.issueNumber(item)
	if err != nil {
		return err
	}
	if _, err := s.client.UpdateIssue(ctx, number, FieldsForStatusPush(item)); err != nil {
		return fmt.Errorf("github status push for #%d: %w", number, err)
	}
	return nil
}

// AddComment posts a comment on the issue backing the item.
func (s *Source) AddComment(ctx context.Context, item *types.WorkItem, text string) error {
	number, err := s.issueNumber(item)
	if err != nil {
		return err
	}
	if err := s.client.CreateComment(ctx, number, text); err != nil {
		return fmt.Errorf("github comment on #%d: %w", number, err)
	}
	return nil
}

// TestConnection probes the repository endpoint with the configured token.
func (s *Source) TestConnection(ctx context.Context) error {
	if err := s.client.GetRepository(ctx); err != nil {
		return fmt.Errorf("github connection test: %w", err)
	}
	return nil
}

// issueNumber extracts the issue number from an item's external binding.
func (s *Source) issueNumber(item *types.WorkItem) (int, error) {
	if item.SourceName != SourceName || item.ExternalID == "" {
		return 0, fmt.Errorf("item %s is not bound to a github issue", item.ID)
	}
	number, err := strconv.Atoi(item.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("item %s has malformed external id %q: %w", item.ID, item.ExternalID, err)
	}
	return number, nil
}
