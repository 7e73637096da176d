package stats

import "pisos/internal/domain"

// Matches reports whether l satisfies every criterion set in c.
func Matches(c domain.Criteria, l domain.Listing) bool {
	if c.Kind != domain.KindAny && l.Kind != c.Kind {
		return false
	}
	if c.Neighborhood != nil && (l.Neighborhood == nil || *l.Neighborhood != *c.Neighborhood) {
		return false
	}
	if c.Province != nil && (l.Province == nil || *l.Province != *c.Province) {
		return false
	}
	if c.MaxPrice != nil && l.Price > *c.MaxPrice {
		return false
	}
	return true
}

// Resolve returns the listings matching c, in input order. The input slice
// is never modified.
func Resolve(c domain.Criteria, listings []domain.Listing) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if Matches(c, l) {
			out = append(out, l)
		}
	}
	return out
}
