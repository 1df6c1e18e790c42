// Package models defines server-side data models persisted by the catalog
// and the asset store.
package models

import (
	"slices"
	"strings"
	"time"
)

// ListingState gates visibility and downloadability of a listing.
type ListingState string

const (
	// StateDraft: metadata registered, chunks may still be written.
	StateDraft ListingState = "draft"
	// StateComplete: every chunk stored and verified; content is immutable.
	StateComplete ListingState = "complete"
	// StateDeleting: deletion in progress; retried deletes finish the job.
	StateDeleting ListingState = "deleting"
)

// Listing is a catalog entry describing one data asset for sale.
type Listing struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	// Price is a unit-less token count.
	Price    int64    `json:"price"`
	Owner    string   `json:"owner"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	State       ListingState `json:"state"`
	TotalChunks int          `json:"total_chunks"`
	TotalSize   int64        `json:"total_size"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsComplete reports whether the listing content can be downloaded.
func (l *Listing) IsComplete() bool {
	return l.State == StateComplete
}

// NewListing carries the caller-supplied fields of a draft listing.
type NewListing struct {
	Name        string
	Description string
	Price       int64
	Owner       string
	Category    string
	Tags        []string
}

// ListingUpdate holds the catalog-level fields an owner may change after the
// content is finalized. Nil fields are left untouched.
type ListingUpdate struct {
	Description *string   `json:"description,omitempty"`
	Price       *int64    `json:"price,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ListingUpdate) IsEmpty() bool {
	return u.Description == nil && u.Price == nil && u.Category == nil && u.Tags == nil
}

// ListFilter narrows catalog listings. Zero values match everything.
type ListFilter struct {
	Owner        string
	Category     string
	Tag          string
	OnlyComplete bool
}

// Match reports whether l passes the filter.
func (f ListFilter) Match(l *Listing) bool {
	if f.Owner != "" && l.Owner != f.Owner {
		return false
	}
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.Tag != "" && !slices.Contains(l.Tags, f.Tag) {
		return false
	}
	if f.OnlyComplete && !l.IsComplete() {
		return false
	}
	return true
}

// NormalizeTags trims, de-duplicates and sorts tags so they behave as a set.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
