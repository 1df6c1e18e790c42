package listings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/dbx"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

const listingColumns = `id, name, description, price, owner, category, tags, state, total_chunks, total_size, created_at, updated_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner) (*models.Listing, error) {
	var (
		l     models.Listing
		tags  []byte
		state string
	)
	err := s.Scan(&l.ID, &l.Name, &l.Description, &l.Price, &l.Owner, &l.Category, &tags,
		&state, &l.TotalChunks, &l.TotalSize, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &l.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(l.Tags) == 0 {
		l.Tags = nil
	}
	l.State = models.ListingState(state)
	return &l, nil
}

// Create inserts a draft listing and returns it with the assigned id.
func (r *PostgresRepository) Create(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	tags, err := encodeTags(l.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	query := `
		INSERT INTO listings (name, description, price, owner, category, tags, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = r.db.QueryRowContext(ctx, query,
		l.Name, l.Description, l.Price, l.Owner, l.Category, tags, string(models.StateDraft), l.CreatedAt, l.UpdatedAt).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	l.State = models.StateDraft
	return l, nil
}

// GetByID returns a single listing or common.ErrNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

// List returns listings matching f ordered by id.
func (r *PostgresRepository) List(ctx context.Context, f models.ListFilter) ([]*models.Listing, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Owner != "" {
		where = append(where, "owner = "+arg(f.Owner))
	}
	if f.Category != "" {
		where = append(where, "category = "+arg(f.Category))
	}
	if f.Tag != "" {
		where = append(where, "tags @> jsonb_build_array("+arg(f.Tag)+"::text)")
	}
	if f.OnlyComplete {
		where = append(where, "state = "+arg(string(models.StateComplete)))
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select listings: %w", err)
	}
	defer rows.Close()

	var result []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// stateError explains why a conditional update affected no rows.
func (r *PostgresRepository) stateError(ctx context.Context, id int64) error {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM listings WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return fmt.Errorf("listing %d is %s: %w", id, state, common.ErrInvalidState)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	if n > 1 {
		return n, fmt.Errorf("unexpected rows affected: %d", n)
	}
	return n, nil
}

// Finalize switches a draft to complete. Exactly one concurrent caller wins.
func (r *PostgresRepository) Finalize(ctx context.Context, id int64, totalChunks int, totalSize int64, at time.Time) error {
	query := `
		UPDATE listings SET state = $2, total_chunks = $3, total_size = $4, updated_at = $5
		WHERE id = $1 AND state = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		id, string(models.StateComplete), totalChunks, totalSize, at, string(models.StateDraft))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.stateError(ctx, id)
	}
	return nil
}

// MarkDeleting hides the listing from downloads ahead of chunk removal.
func (r *PostgresRepository) MarkDeleting(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE listings SET state = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, string(models.StateDeleting), at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdateDetails writes the owner-editable fields of l.
func (r *PostgresRepository) UpdateDetails(ctx context.Context, l *models.Listing) error {
	tags, err := encodeTags(l.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
		UPDATE listings SET description = $2, price = $3, category = $4, tags = $5, updated_at = $6
		WHERE id = $1 AND state <> $7
	`
	res, err := r.db.ExecContext(ctx, query,
		l.ID, l.Description, l.Price, l.Category, tags, l.UpdatedAt, string(models.StateDeleting))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return r.stateError(ctx, l.ID)
	}
	return nil
}

// Delete removes the catalog row.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
