package chunks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

var badgerKeyPrefix = []byte("chunk/")

// BadgerRepository stores chunks in a badger directory under
// "chunk/" + 8-byte listing id + 4-byte index, all big-endian, so a prefix
// scan walks one listing in index order.
type BadgerRepository struct {
	db *badger.DB
}

// NewBadgerRepository opens (or creates) the database in dir.
func NewBadgerRepository(dir string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger db: %w", err)
	}
	return &BadgerRepository{db: db}, nil
}

func badgerListingPrefix(listingID int64) []byte {
	p := make([]byte, 0, len(badgerKeyPrefix)+8)
	p = append(p, badgerKeyPrefix...)
	return append(p, listingKey(listingID)...)
}

func badgerKey(listingID int64, index int) []byte {
	return append(badgerListingPrefix(listingID), indexKey(index)...)
}

// indexFromKey reads the trailing 4-byte chunk index.
func indexFromKey(k []byte) int {
	return int(binary.BigEndian.Uint32(k[len(k)-4:]))
}

func (r *BadgerRepository) Put(ctx context.Context, c *models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := json.Marshal(storedRecord{Payload: c.Payload, Hash: c.Hash})
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(c.ListingID, c.Index), encoded)
	})
}

func (r *BadgerRepository) Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec storedRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(listingID, index))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return common.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}

	return &models.Chunk{ListingID: listingID, Index: index, Payload: rec.Payload, Hash: rec.Hash}, nil
}

func (r *BadgerRepository) List(ctx context.Context, listingID int64) ([]*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := badgerListingPrefix(listingID)
	var result []*models.Chunk

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec storedRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			result = append(result, &models.Chunk{
				ListingID: listingID,
				Index:     indexFromKey(item.Key()),
				Payload:   rec.Payload,
				Hash:      rec.Hash,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *BadgerRepository) Indices(ctx context.Context, listingID int64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys, err := r.keys(listingID)
	if err != nil {
		return nil, err
	}

	result := make([]int, 0, len(keys))
	for _, k := range keys {
		result = append(result, indexFromKey(k))
	}
	return result, nil
}

func (r *BadgerRepository) keys(listingID int64) ([][]byte, error) {
	prefix := badgerListingPrefix(listingID)
	var keys [][]byte

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// DeleteByListing removes the keys through a write batch, which splits the
// work into transactions of allowed size.
func (r *BadgerRepository) DeleteByListing(ctx context.Context, listingID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys, err := r.keys(listingID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()

	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Close flushes and releases the directory lock.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
