package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	listingsRepo *listings.MemoryRepository
	chunksRepo   *flakyChunks
	catalog      *CatalogService
	assets       *AssetService
	transfer     *TransferService
}

func newFixture(t *testing.T, cfg TransferConfig) *fixture {
	t.Helper()
	log := logging.Nop()

	lr := listings.NewMemoryRepository()
	cr := &flakyChunks{Repository: chunks.NewMemoryRepository()}

	catalog := NewCatalogService(lr, log)
	catalog.now = func() time.Time { return fixedNow }
	assets := NewAssetService(lr, cr, 200*time.Millisecond, log)

	return &fixture{
		listingsRepo: lr,
		chunksRepo:   cr,
		catalog:      catalog,
		assets:       assets,
		transfer:     NewTransferService(catalog, assets, cfg, log),
	}
}

func newKey(t *testing.T) []byte {
	t.Helper()
	k, err := cryptox.GenerateKey()
	require.NoError(t, err)
	return k
}

func (f *fixture) draft(t *testing.T, owner string) int64 {
	t.Helper()
	id, err := f.catalog.Create(context.Background(), models.NewListing{
		Name: "weather", Description: "daily temperatures", Price: 5, Owner: owner,
	})
	require.NoError(t, err)
	return id
}

// flakyChunks wraps a real repository. The first slowPuts Put calls block
// until their context expires; putErr and deleteErr replace results. Puts
// of indices in drop report success without storing anything. When hold is
// set, Puts of index holdFrom and above report on entered and wait for hold
// to close before storing.
type flakyChunks struct {
	chunks.Repository

	mu        sync.Mutex
	slowPuts  int
	putCalls  int
	putErr    error
	deleteErr error
	drop      map[int]bool

	holdFrom int
	entered  chan int
	hold     chan struct{}
}

func (f *flakyChunks) Put(ctx context.Context, c *models.Chunk) error {
	f.mu.Lock()
	f.putCalls++
	slow := f.putCalls <= f.slowPuts
	err := f.putErr
	dropped := f.drop[c.Index]
	held := f.hold != nil && c.Index >= f.holdFrom
	f.mu.Unlock()

	if dropped {
		return nil
	}
	if held {
		f.entered <- c.Index
		select {
		case <-f.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if slow {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}
	return f.Repository.Put(ctx, c)
}

func (f *flakyChunks) DeleteByListing(ctx context.Context, id int64) error {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Repository.DeleteByListing(ctx, id)
}

func (f *flakyChunks) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.putCalls
}
