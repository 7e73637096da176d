// Package stats computes catalog statistics over an in-memory listing
// snapshot. All functions are pure: they hold no state, never mutate their
// input and are safe for concurrent use.
package stats

import (
	"sort"

	"pisos/internal/domain"
)

// ScalarStats is the catalog-wide part of domain.Stats.
type ScalarStats struct {
	Total             int
	AvgPrice          float64
	MinPrice          float64
	MaxPrice          float64
	AvgPriceRental    *float64
	AvgPriceCompra    *float64
	AvgSurface        float64
	MinSurface        float64
	MaxSurface        float64
	AvgRooms          float64
	RoomsDistribution domain.RoomsDistribution
}

// Compute filters listings with c and returns the full statistics view.
// Listings that were already filtered by the store pass through Resolve
// unchanged.
func Compute(c domain.Criteria, listings []domain.Listing) domain.Stats {
	ix := buildIndex(Resolve(c, listings))
	s := scalarFromIndex(c, ix)
	return domain.Stats{
		Total:             s.Total,
		AvgPrice:          s.AvgPrice,
		MinPrice:          s.MinPrice,
		MaxPrice:          s.MaxPrice,
		AvgPriceRental:    s.AvgPriceRental,
		AvgPriceCompra:    s.AvgPriceCompra,
		AvgSurface:        s.AvgSurface,
		MinSurface:        s.MinSurface,
		MaxSurface:        s.MaxSurface,
		AvgRooms:          s.AvgRooms,
		RoomsDistribution: s.RoomsDistribution,
		ByNeighborhood:    yieldsFromIndex(c, ix),
	}
}

// Aggregate computes the scalar statistics of an already filtered set.
// An empty set yields zeroed stats with an empty histogram.
func Aggregate(c domain.Criteria, filtered []domain.Listing) ScalarStats {
	return scalarFromIndex(c, buildIndex(filtered))
}

// EstimateYields computes per-neighborhood statistics of an already filtered
// set, ordered by profitability descending with unknown yields last.
func EstimateYields(c domain.Criteria, filtered []domain.Listing) domain.NeighborhoodList {
	return yieldsFromIndex(c, buildIndex(filtered))
}

func scalarFromIndex(c domain.Criteria, ix *index) ScalarStats {
	s := ScalarStats{
		Total:             ix.total,
		AvgPrice:          round2(ix.price.mean()),
		MinPrice:          ix.price.min,
		MaxPrice:          ix.price.max,
		AvgSurface:        round2(ix.surface.mean()),
		MinSurface:        ix.surface.min,
		MaxSurface:        ix.surface.max,
		AvgRooms:          round2(ix.rooms.mean()),
		RoomsDistribution: ix.distribution(),
	}
	// The per-kind split only means something when both kinds are mixed.
	if c.Kind == domain.KindAny {
		s.AvgPriceRental = ix.rentalPrice.meanPtr()
		s.AvgPriceCompra = ix.purchasePrice.meanPtr()
	}
	return s
}

func yieldsFromIndex(c domain.Criteria, ix *index) domain.NeighborhoodList {
	out := make(domain.NeighborhoodList, 0, len(ix.hoods))
	for _, h := range ix.hoods {
		if h.price.empty() {
			continue
		}
		ns := domain.NeighborhoodStats{
			Name:       h.name,
			Total:      h.total,
			AvgPrice:   round2(h.price.mean()),
			MinPrice:   h.price.min,
			MaxPrice:   h.price.max,
			AvgSurface: round2(h.surface.mean()),
			AvgRooms:   round2(h.rooms.mean()),
		}
		if c.Kind == domain.KindAny {
			ns.AvgProfitability = round2Ptr(h.yield())
		}
		out = append(out, ns)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].AvgProfitability, out[j].AvgProfitability
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	return out
}
