package domain

import "time"

// Kind classifies a listing as a rental or a purchase offer.
type Kind string

const (
	KindRental   Kind = "alquiler"
	KindPurchase Kind = "compra"
	// KindAny is the "no kind filter" value of Criteria.
	KindAny Kind = ""
)

// ParseKind maps a query-string value to a Kind. Anything that is not a
// known kind (including "all") means no filtering.
func ParseKind(s string) Kind {
	switch Kind(s) {
	case KindRental:
		return KindRental
	case KindPurchase:
		return KindPurchase
	}
	return KindAny
}

type Listing struct {
	ID                int64     `json:"id"`
	Title             *string   `json:"title"`
	Kind              Kind      `json:"type"`
	Price             float64   `json:"price"` // per month for rentals, absolute for purchases
	Surface           *float64  `json:"surface"`
	Rooms             *int      `json:"rooms"` // nil = unknown, 0 = studio
	Link              string    `json:"link"`
	ProfitabilityRate *float64  `json:"profitabilityRate"`
	Neighborhood      *string   `json:"neighborhood"`
	City              *string   `json:"city"`
	Province          *string   `json:"province"`
	PublishedAddress  *string   `json:"publishedAddress"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ListingPatch carries the fields of a partial update; nil means unchanged.
type ListingPatch struct {
	Title             *string
	Price             *float64
	Surface           *float64
	Link              *string
	ProfitabilityRate *float64
	Kind              *Kind
	Neighborhood      *string
	City              *string
}

type Neighborhood struct {
	Name     string  `json:"name"`
	Province *string `json:"province"`
}
