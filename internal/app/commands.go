package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"pisos/internal/adapters/observability"
	"pisos/internal/domain"
)

// Outcome of importing a single record.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "error"
)

type CatalogService struct {
	repo            domain.ListingRepository
	cache           domain.Cache
	defaultProvince string
}

func NewCatalogService(r domain.ListingRepository, c domain.Cache, defaultProvince string) *CatalogService {
	return &CatalogService{repo: r, cache: c, defaultProvince: defaultProvince}
}

// CreateListing maps a form record, validates it and stores it. A link that
// already exists yields ErrConflict.
func (s *CatalogService) CreateListing(ctx context.Context, rec map[string]any) (domain.Listing, error) {
	l, err := mapListing(rec, s.defaultProvince)
	if err != nil {
		return domain.Listing{}, err
	}
	if err := validateListing(l); err != nil {
		return domain.Listing{}, err
	}
	exists, err := s.repo.ExistsByLink(ctx, l.Link)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("check link: %w", err)
	}
	if exists {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrConflict, l.Link)
	}
	id, err := s.repo.CreateListing(ctx, l)
	if err != nil {
		return domain.Listing{}, err
	}
	s.invalidate(ctx)
	return s.repo.GetListing(ctx, id)
}

func (s *CatalogService) UpdateListing(ctx context.Context, id int64, p domain.ListingPatch) (domain.Listing, error) {
	if err := validatePatch(p); err != nil {
		return domain.Listing{}, err
	}
	l, err := s.repo.UpdateListing(ctx, id, p)
	if err != nil {
		return domain.Listing{}, err
	}
	s.invalidate(ctx)
	return l, nil
}

func (s *CatalogService) DeleteListing(ctx context.Context, id int64) error {
	if err := s.repo.DeleteListing(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	invalidate(ctx, s.cache)
}

// invalidate bumps the catalog generation so every cached read misses.
func invalidate(ctx context.Context, c domain.Cache) {
	if c == nil {
		return
	}
	if _, err := c.Incr(ctx, generationKey); err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}
}

type ImportService struct {
	repo            domain.ListingRepository
	cache           domain.Cache
	defaultProvince string
}

func NewImportService(r domain.ListingRepository, c domain.Cache, defaultProvince string) *ImportService {
	return &ImportService{repo: r, cache: c, defaultProvince: defaultProvince}
}

// ImportOne stores one scraper record. Links already in the catalog are
// skipped; records missing link or price, or failing validation, are errors.
func (s *ImportService) ImportOne(ctx context.Context, rec map[string]any) (Outcome, error) {
	if link := lookupStr(rec, "link"); link != "" {
		exists, err := s.repo.ExistsByLink(ctx, link)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("check link: %w", err)
		}
		if exists {
			return OutcomeSkipped, nil
		}
	}

	l, err := mapListing(rec, s.defaultProvince)
	if err != nil {
		return OutcomeFailed, err
	}
	if l.Link == "" || l.Price <= 0 {
		return OutcomeFailed, fmt.Errorf("%w: link and price are required", domain.ErrInvalidListing)
	}
	if err := validateListing(l); err != nil {
		return OutcomeFailed, err
	}
	if _, err := s.repo.CreateListing(ctx, l); err != nil {
		// a concurrent worker may have inserted the same link first
		if errors.Is(err, domain.ErrConflict) {
			return OutcomeSkipped, nil
		}
		return OutcomeFailed, err
	}
	return OutcomeImported, nil
}

// Import processes records sequentially and invalidates cached reads once
// when anything was imported.
func (s *ImportService) Import(ctx context.Context, records []map[string]any) domain.ImportResult {
	res := domain.ImportResult{Total: len(records)}
	for _, rec := range records {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, domain.ImportError{Link: RecordLink(rec), Error: ctx.Err().Error()})
			continue
		}
		out, err := s.ImportOne(ctx, rec)
		switch out {
		case OutcomeImported:
			res.Imported++
		case OutcomeSkipped:
			res.Skipped++
		default:
			res.Errors = append(res.Errors, domain.ImportError{Link: RecordLink(rec), Error: err.Error()})
		}
	}
	if res.Imported > 0 {
		s.Invalidate(ctx)
	}
	observability.ObserveImport(res.Imported, res.Skipped, len(res.Errors))
	log.Info().Int("total", res.Total).Int("imported", res.Imported).
		Int("skipped", res.Skipped).Int("errors", len(res.Errors)).Msg("import finished")
	return res
}

// SeedNeighborhoods registers names under province. Existing rows only gain
// a province when they had none.
func (s *ImportService) SeedNeighborhoods(ctx context.Context, names []string, province string) error {
	var prov *string
	if province != "" {
		prov = &province
	}
	for _, n := range names {
		if err := s.repo.UpsertNeighborhood(ctx, domain.Neighborhood{Name: n, Province: prov}); err != nil {
			return fmt.Errorf("seed %q: %w", n, err)
		}
	}
	s.Invalidate(ctx)
	return nil
}

// RecordLink names a record in import errors: its trimmed link, or
// "(no link)".
func RecordLink(rec map[string]any) string {
	if l := lookupStr(rec, "link"); l != "" {
		return l
	}
	return "(no link)"
}

func (s *ImportService) Invalidate(ctx context.Context) {
	invalidate(ctx, s.cache)
}
