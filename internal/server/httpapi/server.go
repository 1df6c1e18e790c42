// Package httpapi is the HTTP surface of the marketplace core: listing
// catalog queries, uploads, downloads and deletes.
//
// Routes:
//
//	GET    /healthz
//	GET    /api/listings                 ?owner=&category=&tag=&complete=
//	POST   /api/listings                 raw body, metadata in the query, key in X-Asset-Key
//	GET    /api/listings/mine            caller's listings, drafts included
//	GET    /api/listings/{id}
//	PATCH  /api/listings/{id}            JSON models.ListingUpdate
//	DELETE /api/listings/{id}
//	GET    /api/listings/{id}/content    key in X-Asset-Key
//
// Mutations and downloads need "Authorization: Bearer <jwt>"; the token's
// UserID is the owner identity.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/databazaar/internal/logging"
	"github.com/dmitrijs2005/databazaar/internal/server/services"
)

// DefaultMaxUploadSize caps the request body of an upload.
const DefaultMaxUploadSize = 512 << 20

type Server struct {
	address       string
	catalog       *services.CatalogService
	transfer      *services.TransferService
	jwtSecret     []byte
	maxUploadSize int64
	logger        logging.Logger
}

func NewServer(address string, l logging.Logger, catalog *services.CatalogService, transfer *services.TransferService, secretKey string) *Server {
	return &Server{
		address:       address,
		catalog:       catalog,
		transfer:      transfer,
		jwtSecret:     []byte(secretKey),
		maxUploadSize: DefaultMaxUploadSize,
		logger:        l.With("module", "http_server"),
	}
}

// Router builds the request multiplexer.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api/listings").Subrouter()
	api.HandleFunc("", s.listHandler).Methods(http.MethodGet)
	api.HandleFunc("", s.requireOwner(s.uploadHandler)).Methods(http.MethodPost)
	api.HandleFunc("/mine", s.requireOwner(s.mineHandler)).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", s.getHandler).Methods(http.MethodGet)
	api.HandleFunc("/{id:[0-9]+}", s.requireOwner(s.updateHandler)).Methods(http.MethodPatch)
	api.HandleFunc("/{id:[0-9]+}", s.requireOwner(s.deleteHandler)).Methods(http.MethodDelete)
	api.HandleFunc("/{id:[0-9]+}/content", s.requireOwner(s.contentHandler)).Methods(http.MethodGet)

	return r
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
