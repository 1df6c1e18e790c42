// Package services contains the server-side business logic: the listing
// catalog, the chunk asset store and the transfer orchestrator that drives
// both during uploads, downloads and deletes.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
)

// CatalogService owns listing metadata and the draft -> complete lifecycle.
type CatalogService struct {
	repo  listings.Repository
	locks *keyedMutex
	now   func() time.Time
	log   logging.Logger
}

// NewCatalogService constructs a CatalogService over the given repository.
func NewCatalogService(repo listings.Repository, log logging.Logger) *CatalogService {
	return &CatalogService{
		repo:  repo,
		locks: newKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With("module", "catalog"),
	}
}

// Create registers a draft listing and returns its id.
func (s *CatalogService) Create(ctx context.Context, in models.NewListing) (int64, error) {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return 0, fmt.Errorf("name is empty: %w", common.ErrInvalidInput)
	case strings.TrimSpace(in.Description) == "":
		return 0, fmt.Errorf("description is empty: %w", common.ErrInvalidInput)
	case in.Price < 0:
		return 0, fmt.Errorf("price %d is negative: %w", in.Price, common.ErrInvalidInput)
	case in.Owner == "":
		return 0, fmt.Errorf("owner is empty: %w", common.ErrInvalidInput)
	}

	now := s.now()
	l, err := s.repo.Create(ctx, &models.Listing{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Owner:       in.Owner,
		Category:    strings.TrimSpace(in.Category),
		Tags:        models.NormalizeTags(in.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return 0, fmt.Errorf("error creating listing: %w", err)
	}

	s.log.Debug(ctx, "listing created", "listing_id", l.ID, "owner", l.Owner)
	return l.ID, nil
}

// Finalize marks a draft complete. Only one caller can win for a listing.
func (s *CatalogService) Finalize(ctx context.Context, id int64, totalChunks int, totalSize int64) error {
	if totalChunks <= 0 {
		return fmt.Errorf("total chunks %d: %w", totalChunks, common.ErrInvalidInput)
	}
	if totalSize < int64(totalChunks) {
		return fmt.Errorf("total size %d below chunk count %d: %w", totalSize, totalChunks, common.ErrInvalidInput)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	return s.finalizeLocked(ctx, id, totalChunks, totalSize)
}

// finalizeLocked runs the state swap; the caller holds the write lock of id.
func (s *CatalogService) finalizeLocked(ctx context.Context, id int64, totalChunks int, totalSize int64) error {
	if err := s.repo.Finalize(ctx, id, totalChunks, totalSize, s.now()); err != nil {
		return err
	}

	s.log.Info(ctx, "listing finalized", "listing_id", id, "chunks", totalChunks, "size", totalSize)
	return nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Listing, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns the listings matching f in id order.
func (s *CatalogService) List(ctx context.Context, f models.ListFilter) ([]*models.Listing, error) {
	return s.repo.List(ctx, f)
}

// ListByOwner returns every listing of owner, drafts included.
func (s *CatalogService) ListByOwner(ctx context.Context, owner string) ([]*models.Listing, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is empty: %w", common.ErrInvalidInput)
	}
	return s.repo.List(ctx, models.ListFilter{Owner: owner})
}

// UpdateDetails applies an owner's change to the commercial fields of a
// listing. Content and totals are never touched.
func (s *CatalogService) UpdateDetails(ctx context.Context, id int64, caller string, upd models.ListingUpdate) (*models.Listing, error) {
	if upd.IsEmpty() {
		return nil, fmt.Errorf("nothing to update: %w", common.ErrInvalidInput)
	}
	if upd.Price != nil && *upd.Price < 0 {
		return nil, fmt.Errorf("price %d is negative: %w", *upd.Price, common.ErrInvalidInput)
	}
	if upd.Description != nil && strings.TrimSpace(*upd.Description) == "" {
		return nil, fmt.Errorf("description is empty: %w", common.ErrInvalidInput)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Owner != caller {
		return nil, common.ErrForbidden
	}

	if upd.Description != nil {
		l.Description = *upd.Description
	}
	if upd.Price != nil {
		l.Price = *upd.Price
	}
	if upd.Category != nil {
		l.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Tags != nil {
		l.Tags = models.NormalizeTags(*upd.Tags)
	}
	l.UpdatedAt = s.now()

	if err := s.repo.UpdateDetails(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// lock exposes the per-listing write lock to the transfer orchestrator so a
// delete cannot interleave with a finalize or an in-flight chunk write.
func (s *CatalogService) lock(id int64) func() {
	return s.locks.Lock(id)
}

func (s *CatalogService) markDeleting(ctx context.Context, id int64) error {
	return s.repo.MarkDeleting(ctx, id, s.now())
}

func (s *CatalogService) remove(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
