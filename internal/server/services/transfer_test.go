package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadReq(data, key []byte) UploadRequest {
	return UploadRequest{
		Data: data, Name: "weather", Description: "daily temperatures",
		Price: 3, Owner: "alice", Tags: []string{"csv"}, Key: key,
	}
}

func helloWorld(n int) []byte {
	pattern := []byte("hello world ")
	out := bytes.Repeat(pattern, n/len(pattern)+1)
	return out[:n]
}

func TestTransfer_RoundTripTwoAndAHalfMegabytes(t *testing.T) {
	f := newFixture(t, TransferConfig{Concurrency: 2})
	ctx := context.Background()
	key := newKey(t)
	data := helloWorld(2621440)

	id, err := f.transfer.Upload(ctx, uploadReq(data, key))
	require.NoError(t, err)

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, l.State)
	assert.Equal(t, 3, l.TotalChunks)
	assert.Equal(t, int64(2621440), l.TotalSize)

	stored, err := f.chunksRepo.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	overhead := cryptox.NonceSize + 16
	for i, want := range []int{1048576, 1048576, 524288} {
		assert.Len(t, stored[i].Payload, want+overhead, "chunk %d", i)
		assert.Len(t, stored[i].Hash, cryptox.HashSize)
	}

	got, err := f.transfer.Download(ctx, id, key)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "downloaded bytes differ")
}

func TestTransfer_SmallChunksPreserveOrder(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 7, Concurrency: 8})
	ctx := context.Background()
	key := newKey(t)
	data := []byte("the quick brown fox jumps over the lazy dog")

	id, err := f.transfer.Upload(ctx, uploadReq(data, key))
	require.NoError(t, err)

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, l.TotalChunks)

	got, err := f.transfer.Download(ctx, id, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransfer_RequestChunkSizeOverridesDefault(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 1024})
	ctx := context.Background()
	req := uploadReq([]byte("abcdefghij"), newKey(t))
	req.ChunkSize = 4

	id, err := f.transfer.Upload(ctx, req)
	require.NoError(t, err)

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, l.TotalChunks)
}

func TestTransfer_UploadRejectsBadInputWithoutDraft(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()

	_, err := f.transfer.Upload(ctx, uploadReq(nil, newKey(t)))
	require.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.transfer.Upload(ctx, uploadReq([]byte("x"), []byte("short")))
	require.ErrorIs(t, err, common.ErrInvalidInput)

	req := uploadReq([]byte("x"), newKey(t))
	req.Name = ""
	_, err = f.transfer.Upload(ctx, req)
	require.ErrorIs(t, err, common.ErrInvalidInput)

	all, err := f.catalog.List(ctx, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTransfer_WrongKey(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("secret rows"), newKey(t)))
	require.NoError(t, err)

	_, err = f.transfer.Download(ctx, id, newKey(t))
	require.ErrorIs(t, err, common.ErrAuthenticationFailure)

	_, err = f.transfer.Download(ctx, id, []byte("short"))
	require.ErrorIs(t, err, common.ErrAuthenticationFailure)
}

func TestTransfer_TamperedPayload(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 4})
	ctx := context.Background()
	key := newKey(t)

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("abcdefgh"), key))
	require.NoError(t, err)

	c, err := f.chunksRepo.Get(ctx, id, 1)
	require.NoError(t, err)
	c.Payload[len(c.Payload)-1] ^= 0xFF
	require.NoError(t, f.chunksRepo.Put(ctx, c))

	_, err = f.transfer.Download(ctx, id, key)
	require.ErrorIs(t, err, common.ErrAuthenticationFailure)
	assert.Contains(t, err.Error(), "chunk 1")
}

func TestTransfer_TamperedHash(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 4})
	ctx := context.Background()
	key := newKey(t)

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("abcdefgh"), key))
	require.NoError(t, err)

	c, err := f.chunksRepo.Get(ctx, id, 0)
	require.NoError(t, err)
	c.Hash = cryptox.HashChunk([]byte("something else"))
	require.NoError(t, f.chunksRepo.Put(ctx, c))

	_, err = f.transfer.Download(ctx, id, key)
	require.ErrorIs(t, err, common.ErrIntegrityMismatch)
}

func TestTransfer_DraftIsNotDownloadable(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()
	id := f.draft(t, "alice")

	_, err := f.transfer.Download(ctx, id, newKey(t))
	require.ErrorIs(t, err, common.ErrIncomplete)

	_, err = f.transfer.Download(ctx, 404, newKey(t))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTransfer_MissingChunkAfterFinalize(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()
	key := newKey(t)
	id := f.draft(t, "alice")

	sealed, err := cryptox.Seal([]byte("part"), key)
	require.NoError(t, err)
	require.NoError(t, f.assets.PutChunk(ctx, &models.Chunk{ListingID: id, Index: 0, Payload: sealed, Hash: cryptox.HashChunk([]byte("part"))}))
	require.NoError(t, f.catalog.Finalize(ctx, id, 2, 8))

	_, err = f.transfer.Download(ctx, id, key)
	require.ErrorIs(t, err, common.ErrIncomplete)
}

func TestTransfer_FailedUploadLeavesDraft(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 2, Concurrency: 2})
	f.chunksRepo.putErr = errors.New("disk full")
	ctx := context.Background()

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("abcdef"), newKey(t)))
	require.Error(t, err)
	require.NotZero(t, id, "draft id is reported for cleanup")

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, l.State)

	// non-retryable errors are not retried
	assert.LessOrEqual(t, f.chunksRepo.calls(), 3)

	f.chunksRepo.putErr = nil
	require.NoError(t, f.transfer.Delete(ctx, id, "alice"))
}

func TestTransfer_LostChunkIsFatal(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 2, Concurrency: 2})
	f.chunksRepo.drop = map[int]bool{1: true}
	ctx := context.Background()

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("abcdef"), newKey(t)))
	require.ErrorIs(t, err, common.ErrFatal)
	require.False(t, common.IsRetryable(err))

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, l.State, "a listing with a hole is never finalized")
}

func TestTransfer_RetriesTimedOutChunkWrites(t *testing.T) {
	f := newFixture(t, TransferConfig{Retries: 2})
	f.assets.timeout = 20 * time.Millisecond
	f.chunksRepo.slowPuts = 2
	ctx := context.Background()
	key := newKey(t)

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("payload"), key))
	require.NoError(t, err)
	assert.Equal(t, 3, f.chunksRepo.calls())

	got, err := f.transfer.Download(ctx, id, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestTransfer_RetriesExhausted(t *testing.T) {
	f := newFixture(t, TransferConfig{Retries: 1})
	f.assets.timeout = 20 * time.Millisecond
	f.chunksRepo.slowPuts = 5
	ctx := context.Background()

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("payload"), newKey(t)))
	require.ErrorIs(t, err, common.ErrTimeout)
	assert.Equal(t, 2, f.chunksRepo.calls())

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, l.State)
}

func TestTransfer_DeleteRemovesRowAndChunks(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()

	id, err := f.transfer.Upload(ctx, uploadReq(helloWorld(2621440), newKey(t)))
	require.NoError(t, err)

	idx, err := f.assets.Indices(ctx, id)
	require.NoError(t, err)
	require.Len(t, idx, 3)

	require.ErrorIs(t, f.transfer.Delete(ctx, id, "mallory"), common.ErrForbidden)

	require.NoError(t, f.transfer.Delete(ctx, id, "alice"))

	_, err = f.catalog.Get(ctx, id)
	require.ErrorIs(t, err, common.ErrNotFound)

	idx, err = f.assets.Indices(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, idx)

	require.ErrorIs(t, f.transfer.Delete(ctx, id, "alice"), common.ErrNotFound)
}

func TestTransfer_InterruptedDeleteIsRetryable(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()
	key := newKey(t)

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("rows"), key))
	require.NoError(t, err)

	f.chunksRepo.deleteErr = errors.New("backend down")
	require.Error(t, f.transfer.Delete(ctx, id, "alice"))

	l, err := f.catalog.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDeleting, l.State)

	_, err = f.transfer.Download(ctx, id, key)
	require.ErrorIs(t, err, common.ErrIncomplete)

	f.chunksRepo.deleteErr = nil
	require.NoError(t, f.transfer.Delete(ctx, id, "alice"))

	_, err = f.catalog.Get(ctx, id)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestTransfer_DeleteUsesPurge(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()

	var purged []int64
	f.transfer.WithPurge(func(ctx context.Context, id int64) error {
		purged = append(purged, id)
		return f.listingsRepo.Delete(ctx, id)
	})

	id, err := f.transfer.Upload(ctx, uploadReq([]byte("rows"), newKey(t)))
	require.NoError(t, err)

	require.NoError(t, f.transfer.Delete(ctx, id, "alice"))
	assert.Equal(t, []int64{id}, purged)
}

func TestTransfer_ResumeDeletes(t *testing.T) {
	f := newFixture(t, TransferConfig{})
	ctx := context.Background()

	keep, err := f.transfer.Upload(ctx, uploadReq([]byte("keep"), newKey(t)))
	require.NoError(t, err)
	stale, err := f.transfer.Upload(ctx, uploadReq([]byte("stale"), newKey(t)))
	require.NoError(t, err)
	require.NoError(t, f.catalog.markDeleting(ctx, stale))

	n, err := f.transfer.ResumeDeletes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.catalog.Get(ctx, stale)
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.catalog.Get(ctx, keep)
	require.NoError(t, err)
}

func TestTransfer_DeleteWaitsForInFlightChunkWrite(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 4, Concurrency: 1})
	f.assets.timeout = 5 * time.Second
	f.chunksRepo.entered = make(chan int, 1)
	f.chunksRepo.hold = make(chan struct{})
	ctx := context.Background()
	key := newKey(t)

	type result struct {
		id  int64
		err error
	}
	uploaded := make(chan result, 1)
	go func() {
		id, err := f.transfer.Upload(ctx, uploadReq([]byte("abc"), key))
		uploaded <- result{id, err}
	}()

	// chunk 0 passed the draft check and is now inside the backend
	require.Equal(t, 0, <-f.chunksRepo.entered)
	const id = int64(1)

	deleted := make(chan error, 1)
	go func() { deleted <- f.transfer.Delete(ctx, id, "alice") }()

	select {
	case err := <-deleted:
		t.Fatalf("delete finished while a chunk write was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(f.chunksRepo.hold)

	require.NoError(t, <-deleted)
	res := <-uploaded
	assert.Equal(t, id, res.id)
	if res.err != nil {
		assert.ErrorIs(t, res.err, common.ErrNotFound)
	}

	_, err := f.catalog.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
	idx, err := f.chunksRepo.Indices(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, idx, "no chunk may outlive its listing")
}

func TestTransfer_CancelledUploadLeavesDraft(t *testing.T) {
	f := newFixture(t, TransferConfig{ChunkSize: 4, Concurrency: 1})
	f.assets.timeout = 5 * time.Second
	f.chunksRepo.holdFrom = 1
	f.chunksRepo.entered = make(chan int, 3)
	f.chunksRepo.hold = make(chan struct{})
	key := newKey(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		id  int64
		err error
	}
	uploaded := make(chan result, 1)
	go func() {
		id, err := f.transfer.Upload(ctx, uploadReq([]byte("abcdefghij"), key))
		uploaded <- result{id, err}
	}()

	// chunk 0 is stored, chunk 1 is blocked in the backend
	require.Equal(t, 1, <-f.chunksRepo.entered)
	cancel()

	res := <-uploaded
	require.ErrorIs(t, res.err, context.Canceled)
	require.NotZero(t, res.id, "draft id must be returned")

	bg := context.Background()
	l, err := f.catalog.Get(bg, res.id)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, l.State)

	_, err = f.transfer.Download(bg, res.id, key)
	assert.ErrorIs(t, err, common.ErrIncomplete)

	idx, err := f.chunksRepo.Indices(bg, res.id)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, idx)

	require.NoError(t, f.transfer.Delete(bg, res.id, "alice"))
	idx, err = f.chunksRepo.Indices(bg, res.id)
	require.NoError(t, err)
	assert.Empty(t, idx)
	_, err = f.catalog.Get(bg, res.id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
