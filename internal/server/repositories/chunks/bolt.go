package chunks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

var chunksBucket = []byte("chunks")

// storedRecord is the value stored under a chunk key by the embedded backends.
type storedRecord struct {
	Payload []byte `json:"payload"`
	Hash    []byte `json:"hash"`
}

// BoltRepository stores chunks in a bbolt file. Each listing owns a nested
// bucket under "chunks"; keys are big-endian chunk indices so cursor order is
// index order.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository opens (or creates) the database file at path.
func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating bucket: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

func listingKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func indexKey(i int) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(i))
	return k
}

func (r *BoltRepository) Put(ctx context.Context, c *models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded, err := json.Marshal(storedRecord{Payload: c.Payload, Hash: c.Hash})
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(chunksBucket).CreateBucketIfNotExists(listingKey(c.ListingID))
		if err != nil {
			return err
		}
		return b.Put(indexKey(c.Index), encoded)
	})
}

func (r *BoltRepository) Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec storedRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket).Bucket(listingKey(listingID))
		if b == nil {
			return common.ErrNotFound
		}
		data := b.Get(indexKey(index))
		if data == nil {
			return common.ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}

	return &models.Chunk{ListingID: listingID, Index: index, Payload: rec.Payload, Hash: rec.Hash}, nil
}

func (r *BoltRepository) List(ctx context.Context, listingID int64) ([]*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []*models.Chunk
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket).Bucket(listingKey(listingID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec storedRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			result = append(result, &models.Chunk{
				ListingID: listingID,
				Index:     int(binary.BigEndian.Uint32(k)),
				Payload:   rec.Payload,
				Hash:      rec.Hash,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *BoltRepository) Indices(ctx context.Context, listingID int64) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result []int
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(chunksBucket).Bucket(listingKey(listingID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			result = append(result, int(binary.BigEndian.Uint32(k)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *BoltRepository) DeleteByListing(ctx context.Context, listingID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(chunksBucket).DeleteBucket(listingKey(listingID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Close releases the database file lock.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}
