package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
)

// AssetService stores encrypted chunks and enforces the listing-state rules
// for writing them. Every backend call runs under the chunk timeout.
//
// A chunk write holds the read side of its listing's lock from the state
// check until the backend acknowledges, so a delete or finalize holding the
// write side never sees a write land behind it.
type AssetService struct {
	listings listings.Repository
	chunks   chunks.Repository
	locks    *keyedMutex
	timeout  time.Duration
	log      logging.Logger
}

func NewAssetService(l listings.Repository, c chunks.Repository, timeout time.Duration, log logging.Logger) *AssetService {
	return &AssetService{
		listings: l,
		chunks:   c,
		locks:    newKeyedMutex(),
		timeout:  timeout,
		log:      log.With("module", "assets"),
	}
}

// PutChunk stores c. Drafts accept overwrites so a retried write is
// harmless; complete listings reject every write.
func (s *AssetService) PutChunk(ctx context.Context, c *models.Chunk) error {
	switch {
	case c.Index < 0:
		return fmt.Errorf("chunk index %d: %w", c.Index, common.ErrInvalidInput)
	case len(c.Payload) == 0:
		return fmt.Errorf("chunk payload is empty: %w", common.ErrInvalidInput)
	case len(c.Hash) == 0:
		return fmt.Errorf("chunk hash is empty: %w", common.ErrInvalidInput)
	}

	unlock := s.locks.RLock(c.ListingID)
	defer unlock()

	l, err := s.listings.GetByID(ctx, c.ListingID)
	if err != nil {
		return err
	}

	switch l.State {
	case models.StateDraft:
	case models.StateComplete:
		exists, err := s.exists(ctx, c.ListingID, c.Index)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("chunk %d of listing %d already stored: %w", c.Index, c.ListingID, common.ErrConflict)
		}
		return fmt.Errorf("listing %d is complete: %w", c.ListingID, common.ErrInvalidState)
	default:
		return fmt.Errorf("listing %d is %s: %w", c.ListingID, l.State, common.ErrInvalidState)
	}

	return withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.chunks.Put(ctx, c)
	})
}

func (s *AssetService) exists(ctx context.Context, id int64, index int) (bool, error) {
	_, err := s.GetChunk(ctx, id, index)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (s *AssetService) GetChunk(ctx context.Context, id int64, index int) (*models.Chunk, error) {
	var c *models.Chunk
	err := withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		c, err = s.chunks.Get(ctx, id, index)
		return err
	})
	return c, err
}

// GetAllChunks returns chunks 0..total-1 in order. Indices at or beyond total
// are ignored. Each chunk is fetched under its own chunk timeout.
func (s *AssetService) GetAllChunks(ctx context.Context, id int64, total int) ([]*models.Chunk, error) {
	if total < 0 {
		return nil, fmt.Errorf("total %d: %w", total, common.ErrInvalidInput)
	}

	out := make([]*models.Chunk, 0, total)
	for i := range total {
		c, err := s.GetChunk(ctx, id, i)
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("listing %d: chunk %d of %d missing: %w", id, i, total, common.ErrIncomplete)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Indices lists the stored chunk indices in ascending order.
func (s *AssetService) Indices(ctx context.Context, id int64) ([]int, error) {
	var idx []int
	err := withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		var err error
		idx, err = s.chunks.Indices(ctx, id)
		return err
	})
	return idx, err
}

// DeleteAll removes every chunk of a listing. Deleting nothing is not an
// error.
func (s *AssetService) DeleteAll(ctx context.Context, id int64) error {
	err := withTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.chunks.DeleteByListing(ctx, id)
	})
	if err != nil {
		return err
	}
	s.log.Debug(ctx, "chunks deleted", "listing_id", id)
	return nil
}
