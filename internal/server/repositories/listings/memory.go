package listings

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// MemoryRepository keeps listings in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[int64]*models.Listing
}

// NewMemoryRepository returns an empty repository whose first id is 1.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nextID: 1, rows: make(map[int64]*models.Listing)}
}

func clone(l *models.Listing) *models.Listing {
	c := *l
	c.Tags = slices.Clone(l.Tags)
	return &c
}

func (r *MemoryRepository) Create(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l.ID = r.nextID
	l.State = models.StateDraft
	r.nextID++
	r.rows[l.ID] = clone(l)
	return l, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return clone(l), nil
}

func (r *MemoryRepository) List(ctx context.Context, f models.ListFilter) ([]*models.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Listing
	for _, l := range r.rows {
		if f.Match(l) {
			result = append(result, clone(l))
		}
	}
	slices.SortFunc(result, func(a, b *models.Listing) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return result, nil
}

func (r *MemoryRepository) Finalize(ctx context.Context, id int64, totalChunks int, totalSize int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	if l.State != models.StateDraft {
		return fmt.Errorf("listing %d is %s: %w", id, l.State, common.ErrInvalidState)
	}

	l.State = models.StateComplete
	l.TotalChunks = totalChunks
	l.TotalSize = totalSize
	l.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) MarkDeleting(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[id]
	if !ok {
		return common.ErrNotFound
	}
	l.State = models.StateDeleting
	l.UpdatedAt = at
	return nil
}

func (r *MemoryRepository) UpdateDetails(ctx context.Context, upd *models.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.rows[upd.ID]
	if !ok {
		return common.ErrNotFound
	}
	if l.State == models.StateDeleting {
		return fmt.Errorf("listing %d is %s: %w", l.ID, l.State, common.ErrInvalidState)
	}

	l.Description = upd.Description
	l.Price = upd.Price
	l.Category = upd.Category
	l.Tags = slices.Clone(upd.Tags)
	l.UpdatedAt = upd.UpdatedAt
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}
