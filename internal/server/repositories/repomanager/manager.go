package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/databazaar/internal/dbx"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/databazaar/internal/server/repositories/listings"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Listings(db dbx.DBTX) listings.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	PurgeListing(ctx context.Context, db *sql.DB, id int64) error
}
