package chunks

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// MemoryRepository keeps chunks in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[int64]map[int]*models.Chunk
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[int64]map[int]*models.Chunk)}
}

func cloneChunk(c *models.Chunk) *models.Chunk {
	return &models.Chunk{
		ListingID: c.ListingID,
		Index:     c.Index,
		Payload:   bytes.Clone(c.Payload),
		Hash:      bytes.Clone(c.Hash),
	}
}

func (r *MemoryRepository) Put(ctx context.Context, c *models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byIndex, ok := r.data[c.ListingID]
	if !ok {
		byIndex = make(map[int]*models.Chunk)
		r.data[c.ListingID] = byIndex
	}
	byIndex[c.Index] = cloneChunk(c)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.data[listingID][index]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneChunk(c), nil
}

func (r *MemoryRepository) List(ctx context.Context, listingID int64) ([]*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byIndex := r.data[listingID]
	result := make([]*models.Chunk, 0, len(byIndex))
	for _, i := range slices.Sorted(maps.Keys(byIndex)) {
		result = append(result, cloneChunk(byIndex[i]))
	}
	return result, nil
}

func (r *MemoryRepository) Indices(ctx context.Context, listingID int64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.data[listingID])), nil
}

func (r *MemoryRepository) DeleteByListing(ctx context.Context, listingID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.data, listingID)
	return nil
}
