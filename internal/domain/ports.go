package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidListing = errors.New("invalid listing")
	ErrConflict       = errors.New("listing already exists")
)

type ListingRepository interface {
	// Write paths
	CreateListing(ctx context.Context, l Listing) (int64, error)
	UpdateListing(ctx context.Context, id int64, p ListingPatch) (Listing, error)
	DeleteListing(ctx context.Context, id int64) error
	UpsertNeighborhood(ctx context.Context, n Neighborhood) error

	// Read paths
	GetListing(ctx context.Context, id int64) (Listing, error)
	ExistsByLink(ctx context.Context, link string) (bool, error)
	ListListings(ctx context.Context, c Criteria) ([]Listing, error)
	ListNeighborhoods(ctx context.Context, q NeighborhoodQuery) ([]string, error)
	ListProvinces(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (CatalogCounts, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// ImportClient pushes scraper records to a remote instance's import endpoint.
type ImportClient interface {
	Ping(ctx context.Context) error
	Import(ctx context.Context, records []map[string]any) (ImportResult, error)
}

// NeighborhoodQuery selects either registered neighborhoods (All) or the
// distinct neighborhoods that appear in listings.
type NeighborhoodQuery struct {
	All      bool
	Province *string // only with All
	Kind     Kind    // only without All
}

type CatalogCounts struct {
	Listings      int64 `json:"listings"`
	Neighborhoods int64 `json:"neighborhoods"`
}

type ImportError struct {
	Link  string `json:"link"`
	Error string `json:"error"`
}

type ImportResult struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors,omitempty"`
	Total    int           `json:"total"`
}

// Add folds another result into r.
func (r *ImportResult) Add(o ImportResult) {
	r.Imported += o.Imported
	r.Skipped += o.Skipped
	r.Errors = append(r.Errors, o.Errors...)
	r.Total += o.Total
}
