// Package chunks persists encrypted chunks keyed by (listing id, chunk index).
//
// # Overview
//
// Repository is a plain key-value contract; listing-state rules (no
// overwrite of finalized content, contiguity checks) live in the asset
// service on top of it. Backends:
//
//   - PostgresRepository: the chunks table next to the catalog
//   - BoltRepository:     a single-node embedded bbolt file
//   - BadgerRepository:   a single-node embedded badger directory
//   - S3Repository:       an S3-compatible bucket (MinIO, AWS)
//   - MemoryRepository:   process memory, for tests and demos
//
// Every backend returns chunks ordered by index and treats deletion of an
// unknown listing as a no-op.
package chunks

import (
	"context"

	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// Repository stores chunk payloads and their plaintext digests.
type Repository interface {
	// Put stores c, replacing an existing chunk with the same key.
	Put(ctx context.Context, c *models.Chunk) error

	// Get returns one chunk or common.ErrNotFound.
	Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error)

	// List returns every chunk of a listing in ascending index order.
	List(ctx context.Context, listingID int64) ([]*models.Chunk, error)

	// Indices returns the stored chunk indices in ascending order.
	Indices(ctx context.Context, listingID int64) ([]int, error)

	// DeleteByListing removes every chunk of a listing. Idempotent.
	DeleteByListing(ctx context.Context, listingID int64) error
}
