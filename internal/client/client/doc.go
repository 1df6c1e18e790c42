// Package client talks to the DataBazaar HTTP API.
//
// HTTPClient implements Client over net/http. Every call takes a context;
// the per-request deadline comes from the caller. Failed responses are mapped
// back to the sentinel errors in internal/common (ErrNotFound, ErrForbidden
// and so on) plus ErrUnauthorized and ErrUnavailable from this package, so
// callers can match them with errors.Is.
//
// Upload and download keys travel in the X-Asset-Key header for the duration
// of one request. The client never stores them.
package client
