// Package listings persists catalog entries (listings) of data assets.
//
// Two implementations are provided: PostgresRepository for durable
// deployments and MemoryRepository for single-process use and tests.
// State transitions are compare-and-swap operations so that concurrent
// finalize and delete calls on one listing cannot both succeed.
package listings

import (
	"context"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// Repository is the catalog persistence contract used by the services.
type Repository interface {
	// Create inserts l as a draft and fills in its ID.
	Create(ctx context.Context, l *models.Listing) (*models.Listing, error)

	// GetByID returns the listing or common.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Listing, error)

	// List returns listings matching f, ordered by id ascending.
	List(ctx context.Context, f models.ListFilter) ([]*models.Listing, error)

	// Finalize moves a draft to complete and records its totals.
	// It returns common.ErrNotFound or common.ErrInvalidState when the
	// listing is missing or not a draft.
	Finalize(ctx context.Context, id int64, totalChunks int, totalSize int64, at time.Time) error

	// MarkDeleting moves any listing to the deleting state.
	MarkDeleting(ctx context.Context, id int64, at time.Time) error

	// UpdateDetails stores description, price, category and tags of l.
	// Listings being deleted are rejected with common.ErrInvalidState.
	UpdateDetails(ctx context.Context, l *models.Listing) error

	// Delete removes the catalog row.
	Delete(ctx context.Context, id int64) error
}
