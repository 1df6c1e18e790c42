// Package repomanager vends the PostgreSQL repositories, runs the embedded
// goose migrations and removes listings atomically when both the catalog and
// the chunks live in the same database.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/databazaar/internal/dbx"
	"github.com/dmitrijs2005/databazaar/internal/server/migrations"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct{}

// Listings returns a listings.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Listings(db dbx.DBTX) listings.Repository {
	return listings.NewPostgresRepository(db)
}

// Chunks returns a chunks.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Chunks(db dbx.DBTX) chunks.Repository {
	return chunks.NewPostgresRepository(db)
}

// PurgeListing deletes the chunks and the listing row in one transaction.
func (m *PostgresRepositoryManager) PurgeListing(ctx context.Context, db *sql.DB, id int64) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := m.Chunks(tx).DeleteByListing(ctx, id); err != nil {
			return err
		}
		return m.Listings(tx).Delete(ctx, id)
	})
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
