// Package tracker defines the WorkSource port: the interface an external
// issue tracker presents to the sync service. Implementations live in
// sub-packages (github).
package tracker

import (
	"context"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

// Source is the external ticket tracker port.
//
// Contract: Sync must omit pull-request-like objects, and returned items
// carry SourceName equal to Name() and a non-empty ExternalID.
type Source interface {
	// Name identifies the tracker (e.g. "github"). Items ingested from this
	// source carry it as SourceName.
	Name() string

	// Sync fetches the current remote snapshot as work items.
	Sync(ctx context.Context) ([]*types.WorkItem, error)

	// UpdateStatus pushes the item's status back to the remote (labels plus
	// a closed flag where applicable).
	UpdateStatus(ctx context.Context, item *types.WorkItem) error

	// AddComment posts a comment on the remote object backing the item.
	AddComment(ctx context.Context, item *types.WorkItem, text string) error

	// TestConnection probes connectivity and credentials.
	TestConnection(ctx context.Context) error
}
