// Package netx holds small HTTP helpers shared by API clients.
package netx

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 << 10

// StatusError is returned for a response with an unexpected status code.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("unexpected response: %s", e.Status)
	}
	return fmt.Sprintf("unexpected response: %s; body: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

// CheckResponse returns nil when resp has the wanted status and a
// *StatusError carrying the head of the body otherwise.
func CheckResponse(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: b}
}

// NormalizeBaseURL accepts "host:port" or a full URL and returns it with a
// scheme and without a trailing slash.
func NormalizeBaseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty server address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("bad server address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("bad server address %q: unsupported scheme %q", addr, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("bad server address %q: no host", addr)
	}
	return strings.TrimRight(u.String(), "/"), nil
}
