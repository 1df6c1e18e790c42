package chunks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/dbx"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put upserts a chunk by (listing_id, chunk_index).
func (r *PostgresRepository) Put(ctx context.Context, c *models.Chunk) error {
	query := `
		INSERT INTO chunks (listing_id, chunk_index, payload, chunk_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (listing_id, chunk_index)
		DO UPDATE SET payload = EXCLUDED.payload, chunk_hash = EXCLUDED.chunk_hash
	`
	if _, err := r.db.ExecContext(ctx, query, c.ListingID, c.Index, c.Payload, c.Hash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, listingID int64, index int) (*models.Chunk, error) {
	query := `SELECT payload, chunk_hash FROM chunks WHERE listing_id = $1 AND chunk_index = $2`

	c := &models.Chunk{ListingID: listingID, Index: index}
	err := r.db.QueryRowContext(ctx, query, listingID, index).Scan(&c.Payload, &c.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) List(ctx context.Context, listingID int64) ([]*models.Chunk, error) {
	query := `SELECT chunk_index, payload, chunk_hash FROM chunks WHERE listing_id = $1 ORDER BY chunk_index`

	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks: %w", err)
	}
	defer rows.Close()

	var result []*models.Chunk
	for rows.Next() {
		c := &models.Chunk{ListingID: listingID}
		if err := rows.Scan(&c.Index, &c.Payload, &c.Hash); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Indices(ctx context.Context, listingID int64) ([]int, error) {
	query := `SELECT chunk_index FROM chunks WHERE listing_id = $1 ORDER BY chunk_index`

	rows, err := r.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunk indices: %w", err)
	}
	defer rows.Close()

	var result []int
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, err
		}
		result = append(result, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteByListing(ctx context.Context, listingID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE listing_id = $1`, listingID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
