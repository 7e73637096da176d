package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"pisos/internal/adapters/observability"
	"pisos/internal/domain"
	"pisos/internal/stats"
)

// generationKey is bumped on every catalog write; read keys embed it so a
// single INCR invalidates every cached view.
const generationKey = "catalog:gen"

// loadTimeout bounds a shared stats load once it no longer follows the
// first caller's context.
const loadTimeout = 30 * time.Second

type QueryService struct {
	repo     domain.ListingRepository
	cache    domain.Cache
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewQueryService(r domain.ListingRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// Stats aggregates the listings matching c. Results are cached per criteria
// and catalog generation.
func (s *QueryService) Stats(ctx context.Context, c domain.Criteria) (domain.Stats, error) {
	key := fmt.Sprintf("stats:%d:%s", s.generation(ctx), criteriaKey(c))
	var out domain.Stats
	if s.cached(ctx, key, &out) {
		return out, nil
	}

	// concurrent misses for the same key share one load and aggregation;
	// one caller going away must not fail the others
	v, err, _ := s.sf.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		listings, err := s.repo.ListListings(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("load listings: %w", err)
		}

		start := time.Now()
		st := stats.Compute(c, listings)
		dur := time.Since(start)
		observability.ObserveStats(string(c.Kind), len(listings), dur)
		log.Debug().Int("listings", len(listings)).Int("neighborhoods", len(st.ByNeighborhood)).
			Dur("duration", dur).Msg("stats computed")

		s.store(ctx, key, st)
		return st, nil
	})
	if err != nil {
		return domain.Stats{}, err
	}
	return v.(domain.Stats), nil
}

// ListListings is not cached: the catalog view must reflect writes at once.
func (s *QueryService) ListListings(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	ls, err := s.repo.ListListings(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return ls, nil
}

func (s *QueryService) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	return s.repo.GetListing(ctx, id)
}

func (s *QueryService) Neighborhoods(ctx context.Context, q domain.NeighborhoodQuery) ([]string, error) {
	key := fmt.Sprintf("neighborhoods:%d:%t:%s:%s", s.generation(ctx), q.All, deref(q.Province), q.Kind)
	var out []string
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.repo.ListNeighborhoods(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list neighborhoods: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *QueryService) Provinces(ctx context.Context) ([]string, error) {
	key := fmt.Sprintf("provinces:%d", s.generation(ctx))
	var out []string
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.repo.ListProvinces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list provinces: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *QueryService) Health(ctx context.Context) (domain.CatalogCounts, error) {
	return s.repo.Counts(ctx)
}

// cached reports a usable hit for key. An entry that no longer decodes is
// evicted and read as a miss, so the caller recomputes and overwrites it.
func (s *QueryService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if !ok {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, recomputing")
		if err := s.cache.Del(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("cache evict failed")
		}
		return false
	}
	return true
}

func (s *QueryService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds())); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// generation reads the catalog generation; an unreachable cache reads as 0.
func (s *QueryService) generation(ctx context.Context) int64 {
	if s.cache == nil {
		return 0
	}
	var g int64
	if ok, err := s.cache.Get(ctx, generationKey, &g); ok && err == nil {
		return g
	}
	return 0
}

// criteriaKey is a stable digest of the criteria fields.
func criteriaKey(c domain.Criteria) string {
	maxPrice := ""
	if c.MaxPrice != nil {
		maxPrice = strconv.FormatFloat(*c.MaxPrice, 'f', -1, 64)
	}
	raw := strings.Join([]string{string(c.Kind), deref(c.Neighborhood), deref(c.Province), maxPrice}, "\x1f")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
