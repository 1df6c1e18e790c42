package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/databazaar/internal/common"
	"github.com/dmitrijs2005/databazaar/internal/cryptox"
	"github.com/dmitrijs2005/databazaar/internal/netx"
	"github.com/dmitrijs2005/databazaar/internal/server/models"
)

// Client is the API surface the CLI needs.
type Client interface {
	Ping(ctx context.Context) error
	Upload(ctx context.Context, p UploadParams, data []byte, key []byte) (int64, error)
	Download(ctx context.Context, id int64, key []byte) ([]byte, error)
	List(ctx context.Context, p ListParams) ([]*models.Listing, error)
	Mine(ctx context.Context) ([]*models.Listing, error)
	Get(ctx context.Context, id int64) (*models.Listing, error)
	Update(ctx context.Context, id int64, upd models.ListingUpdate) (*models.Listing, error)
	Delete(ctx context.Context, id int64) error
}

// UploadParams is the listing metadata sent with an upload.
type UploadParams struct {
	Name        string
	Description string
	Price       int64
	Category    string
	Tags        []string
	// ChunkSize overrides the server default when positive.
	ChunkSize int
}

// ListParams narrows a catalog query. IncludeDrafts lists listings in any
// state; by default only complete ones are returned.
type ListParams struct {
	Owner         string
	Category      string
	Tag           string
	IncludeDrafts bool
}

type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient accepts "host:port" or a full base URL.
func NewHTTPClient(serverURL, token string) (*HTTPClient, error) {
	base, err := netx.NormalizeBaseURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{baseURL: base, token: token, http: &http.Client{}}, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and checks the status. On success the caller owns the body.
func (c *HTTPClient) do(req *http.Request, want int) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, common.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if err := netx.CheckResponse(resp, want); err != nil {
		resp.Body.Close()
		return nil, mapError(err)
	}
	return resp, nil
}

func (c *HTTPClient) doJSON(req *http.Request, want int, out any) error {
	resp, err := c.do(req, want)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapError turns an API error response into a sentinel the caller can match.
func mapError(err error) error {
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return err
	}

	var body struct {
		Error string `json:"error"`
	}
	msg := se.Status
	if json.Unmarshal(se.Body, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	var target error
	switch se.StatusCode {
	case http.StatusBadRequest:
		target = common.ErrInvalidInput
	case http.StatusUnauthorized:
		target = ErrUnauthorized
	case http.StatusForbidden:
		target = common.ErrForbidden
	case http.StatusNotFound:
		target = common.ErrNotFound
	case http.StatusConflict:
		target = common.ErrInvalidState
	case http.StatusRequestEntityTooLarge:
		target = ErrTooLarge
	case http.StatusUnprocessableEntity:
		target = common.ErrAuthenticationFailure
	case http.StatusGatewayTimeout:
		target = common.ErrTimeout
	case http.StatusInternalServerError:
		if strings.Contains(msg, common.ErrIntegrityMismatch.Error()) {
			target = common.ErrIntegrityMismatch
		} else {
			target = ErrUnavailable
		}
	default:
		target = ErrUnavailable
	}
	return fmt.Errorf("%s: %w", msg, target)
}

func listingPath(id int64) string {
	return "/api/listings/" + strconv.FormatInt(id, 10)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, http.StatusOK, nil)
}

func (c *HTTPClient) Upload(ctx context.Context, p UploadParams, data []byte, key []byte) (int64, error) {
	q := url.Values{}
	q.Set("name", p.Name)
	q.Set("description", p.Description)
	q.Set("price", strconv.FormatInt(p.Price, 10))
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if len(p.Tags) > 0 {
		q.Set("tags", strings.Join(p.Tags, ","))
	}
	if p.ChunkSize > 0 {
		q.Set("chunk_size", strconv.Itoa(p.ChunkSize))
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/listings", q, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(common.AssetKeyHeaderName, cryptox.FormatKey(key))

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.doJSON(req, http.StatusCreated, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}

func (c *HTTPClient) Download(ctx context.Context, id int64, key []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, listingPath(id)+"/content", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(common.AssetKeyHeaderName, cryptox.FormatKey(key))

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return data, nil
}

func (c *HTTPClient) List(ctx context.Context, p ListParams) ([]*models.Listing, error) {
	q := url.Values{}
	if p.Owner != "" {
		q.Set("owner", p.Owner)
	}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Tag != "" {
		q.Set("tag", p.Tag)
	}
	if p.IncludeDrafts {
		q.Set("complete", "false")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/listings", q, nil)
	if err != nil {
		return nil, err
	}

	var out []*models.Listing
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Mine(ctx context.Context) ([]*models.Listing, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/listings/mine", nil, nil)
	if err != nil {
		return nil, err
	}

	var out []*models.Listing
	if err := c.doJSON(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Get(ctx context.Context, id int64) (*models.Listing, error) {
	req, err := c.newRequest(ctx, http.MethodGet, listingPath(id), nil, nil)
	if err != nil {
		return nil, err
	}

	var l models.Listing
	if err := c.doJSON(req, http.StatusOK, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) Update(ctx context.Context, id int64, upd models.ListingUpdate) (*models.Listing, error) {
	body, err := json.Marshal(upd)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPatch, listingPath(id), nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var l models.Listing
	if err := c.doJSON(req, http.StatusOK, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	req, err := c.newRequest(ctx, http.MethodDelete, listingPath(id), nil, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, http.StatusNoContent, nil)
}
