package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/databazaar/internal/chunker"
	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// PurgeFunc removes the chunks and the catalog row of a listing in one step.
// It is set when both live in the same transactional store.
type PurgeFunc func(ctx context.Context, id int64) error

// TransferConfig tunes uploads.
type TransferConfig struct {
	ChunkSize   int
	Concurrency int
	// Retries is the number of extra attempts for a chunk write that timed out.
	Retries int
}

// UploadRequest is one asset together with its listing metadata. Key is the
// 32-byte content key; it is used for this upload only and never stored.
type UploadRequest struct {
	Data        []byte
	Name        string
	Description string
	Price       int64
	Owner       string
	Category    string
	Tags        []string
	// ChunkSize overrides TransferConfig.ChunkSize when positive.
	ChunkSize int
	Key       []byte
}

// TransferService drives uploads, downloads and deletes across the catalog
// and the asset store.
type TransferService struct {
	catalog *CatalogService
	assets  *AssetService
	purge   PurgeFunc
	cfg     TransferConfig
	log     logging.Logger
}

func NewTransferService(catalog *CatalogService, assets *AssetService, cfg TransferConfig, log logging.Logger) *TransferService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	// chunk writes and catalog transitions must serialize on the same locks
	assets.locks = catalog.locks

	return &TransferService{
		catalog: catalog,
		assets:  assets,
		cfg:     cfg,
		log:     log.With("module", "transfer"),
	}
}

// WithPurge makes Delete remove chunks and row through p instead of two
// separate calls.
func (s *TransferService) WithPurge(p PurgeFunc) *TransferService {
	s.purge = p
	return s
}

// Upload stores req.Data as a new listing and returns its id. The listing is
// finalized only after every chunk is stored. On failure after the draft was
// created the draft id is returned along with the error so the caller can
// delete it.
func (s *TransferService) Upload(ctx context.Context, req UploadRequest) (int64, error) {
	if len(req.Data) == 0 {
		return 0, fmt.Errorf("data is empty: %w", common.ErrInvalidInput)
	}
	if len(req.Key) != cryptox.KeySize {
		return 0, fmt.Errorf("key must be %d bytes: %w", cryptox.KeySize, common.ErrInvalidInput)
	}
	size := req.ChunkSize
	if size <= 0 {
		size = s.cfg.ChunkSize
	}

	id, err := s.catalog.Create(ctx, models.NewListing{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Owner:       req.Owner,
		Category:    req.Category,
		Tags:        req.Tags,
	})
	if err != nil {
		return 0, err
	}

	log := s.log.With("upload_id", uuid.NewString(), "listing_id", id)

	parts, err := chunker.Split(req.Data, size)
	if err != nil {
		return id, err
	}

	log.Info(ctx, "upload started", "chunks", len(parts), "size", len(req.Data))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, part := range parts {
		g.Go(func() error {
			sealed, err := cryptox.Seal(part, req.Key)
			if err != nil {
				return err
			}
			return s.putWithRetry(gctx, log, &models.Chunk{
				ListingID: id,
				Index:     i,
				Payload:   sealed,
				Hash:      cryptox.HashChunk(part),
			})
		})
	}

	if err := g.Wait(); err != nil {
		log.Error(ctx, "upload failed, listing left as draft", "error", err)
		return id, err
	}

	if err := s.finalize(ctx, log, id, len(parts), int64(len(req.Data))); err != nil {
		return id, err
	}

	log.Info(ctx, "upload complete")
	return id, nil
}

// finalize checks under the listing's write lock that the draft still exists
// and holds exactly chunks 0..n-1, then completes it. A concurrent delete
// either finishes first (common.ErrNotFound) or waits for the finalize.
func (s *TransferService) finalize(ctx context.Context, log logging.Logger, id int64, n int, size int64) error {
	unlock := s.catalog.lock(id)
	defer unlock()

	l, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.State != models.StateDraft {
		return fmt.Errorf("listing %d is %s: %w", id, l.State, common.ErrInvalidState)
	}

	stored, err := s.assets.Indices(ctx, id)
	if err != nil {
		return err
	}
	if !isContiguous(stored, n) {
		log.Error(ctx, "store lost acknowledged chunks", "stored", len(stored), "want", n)
		return fmt.Errorf("listing %d: stored %d of %d chunks: %w", id, len(stored), n, common.ErrFatal)
	}

	return s.catalog.finalizeLocked(ctx, id, n, size)
}

func (s *TransferService) putWithRetry(ctx context.Context, log logging.Logger, c *models.Chunk) error {
	for attempt := 0; ; attempt++ {
		err := s.assets.PutChunk(ctx, c)
		if err == nil {
			return nil
		}
		if !common.IsRetryable(err) || attempt >= s.cfg.Retries || ctx.Err() != nil {
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		log.Warn(ctx, "chunk write timed out, retrying", "chunk", c.Index, "attempt", attempt+1)
	}
}

// isContiguous reports whether idx is exactly 0..n-1.
func isContiguous(idx []int, n int) bool {
	if len(idx) != n {
		return false
	}
	for i, v := range idx {
		if v != i {
			return false
		}
	}
	return true
}

// Download reassembles, decrypts and verifies a complete listing. Drafts and
// listings being deleted report common.ErrIncomplete.
func (s *TransferService) Download(ctx context.Context, id int64, key []byte) ([]byte, error) {
	l, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !l.IsComplete() {
		return nil, fmt.Errorf("listing %d is %s: %w", id, l.State, common.ErrIncomplete)
	}

	parts, err := s.assets.GetAllChunks(ctx, id, l.TotalChunks)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, l.TotalSize)
	for _, c := range parts {
		plain, err := cryptox.Open(c.Payload, key)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		if !cryptox.VerifyHash(plain, c.Hash) {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, common.ErrIntegrityMismatch)
		}
		out = append(out, plain...)
	}
	return out, nil
}

// Delete removes a listing and all of its chunks. Only the owner may delete.
// A failure leaves the listing in the deleting state; calling Delete again
// finishes the job.
func (s *TransferService) Delete(ctx context.Context, id int64, caller string) error {
	unlock := s.catalog.lock(id)
	defer unlock()

	l, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.Owner != caller {
		return common.ErrForbidden
	}

	if err := s.catalog.markDeleting(ctx, id); err != nil {
		return err
	}

	if s.purge != nil {
		err = s.purge(ctx, id)
	} else {
		err = s.deleteInSteps(ctx, id)
	}
	if err != nil {
		s.log.Error(ctx, "delete interrupted, listing left in deleting state", "listing_id", id, "error", err)
		return err
	}

	s.log.Info(ctx, "listing deleted", "listing_id", id, "chunks", l.TotalChunks)
	return nil
}

func (s *TransferService) deleteInSteps(ctx context.Context, id int64) error {
	if err := s.assets.DeleteAll(ctx, id); err != nil {
		return err
	}
	return s.catalog.remove(ctx, id)
}

// ResumeDeletes finishes deletes that were interrupted, e.g. by a crash
// between removing chunks and removing the row.
func (s *TransferService) ResumeDeletes(ctx context.Context) (int, error) {
	all, err := s.catalog.List(ctx, models.ListFilter{})
	if err != nil {
		return 0, err
	}

	pending := slices.DeleteFunc(all, func(l *models.Listing) bool { return l.State != models.StateDeleting })
	for _, l := range pending {
		if err := s.Delete(ctx, l.ID, l.Owner); err != nil {
			return 0, err
		}
	}
	return len(pending), nil
}
