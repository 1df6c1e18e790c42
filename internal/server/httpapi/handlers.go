package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
	"github.com/dmitrijs2005/databazaar/internal/server/services"
)

type createdResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad listing id: %w", common.ErrInvalidInput)
	}
	return id, nil
}

func assetKey(r *http.Request) ([]byte, error) {
	v := r.Header.Get(common.AssetKeyHeaderName)
	if v == "" {
		return nil, fmt.Errorf("%s header is required: %w", common.AssetKeyHeaderName, common.ErrInvalidInput)
	}
	return cryptox.ParseKey(v)
}

func parseBool(q string, def bool) (bool, error) {
	if q == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(q)
	if err != nil {
		return false, fmt.Errorf("bad boolean %q: %w", q, common.ErrInvalidInput)
	}
	return b, nil
}

func splitTags(q string) []string {
	if q == "" {
		return nil
	}
	return strings.Split(q, ",")
}

// listHandler shows complete listings unless complete=false is asked for.
func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	onlyComplete, err := parseBool(q.Get("complete"), true)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := s.catalog.List(r.Context(), models.ListFilter{
		Owner:        q.Get("owner"),
		Category:     q.Get("category"),
		Tag:          q.Get("tag"),
		OnlyComplete: onlyComplete,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.Listing{}
	}
	jsonResponse(w, http.StatusOK, list)
}

func (s *Server) mineHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.ListByOwner(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.Listing{}
	}
	jsonResponse(w, http.StatusOK, list)
}

func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	l, err := s.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	key, err := assetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer common.WipeByteArray(key)

	price, err := strconv.ParseInt(q.Get("price"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("bad price: %w", common.ErrInvalidInput))
		return
	}

	var chunkSize int
	if v := q.Get("chunk_size"); v != "" {
		if chunkSize, err = strconv.Atoi(v); err != nil || chunkSize <= 0 {
			writeError(w, fmt.Errorf("bad chunk_size: %w", common.ErrInvalidInput))
			return
		}
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadSize))
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.transfer.Upload(r.Context(), services.UploadRequest{
		Data:        data,
		Name:        q.Get("name"),
		Description: q.Get("description"),
		Price:       price,
		Owner:       ownerFrom(r.Context()),
		Category:    q.Get("category"),
		Tags:        splitTags(q.Get("tags")),
		ChunkSize:   chunkSize,
		Key:         key,
	})
	if err != nil {
		if id != 0 {
			s.logger.Warn(r.Context(), "upload left a draft behind", "listing_id", id)
		}
		writeError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) updateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var upd models.ListingUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&upd); err != nil {
		writeError(w, fmt.Errorf("invalid JSON: %w", common.ErrInvalidInput))
		return
	}

	l, err := s.catalog.UpdateDetails(r.Context(), id, ownerFrom(r.Context()), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, l)
}

func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.transfer.Delete(r.Context(), id, ownerFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) contentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	key, err := assetKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	defer common.WipeByteArray(key)

	data, err := s.transfer.Download(r.Context(), id, key)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
