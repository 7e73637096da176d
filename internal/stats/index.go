package stats

import (
	"sort"

	"pisos/internal/domain"
)

// index is the result of the single grouping pass over a filtered snapshot.
// Every statistic the engine reports is read off it.
type index struct {
	total         int
	price         summary
	surface       summary
	rooms         summary
	rentalPrice   summary
	purchasePrice summary

	roomCounts   map[int]int
	unknownRooms int

	hoods  []*hood // discovery order
	byName map[string]*hood
}

type hood struct {
	name      string
	total     int
	price     summary
	surface   summary
	rooms     summary
	rentals   int
	purchases int
	byRooms   map[int]*roomPair
}

// roomPair holds the valid rental and purchase prices for one room count.
type roomPair struct {
	rental   summary
	purchase summary
}

func buildIndex(filtered []domain.Listing) *index {
	ix := &index{
		roomCounts: make(map[int]int),
		byName:     make(map[string]*hood),
	}
	for i := range filtered {
		ix.add(&filtered[i])
	}
	return ix
}

func (ix *index) add(l *domain.Listing) {
	ix.total++
	observeFields(l, &ix.price, &ix.surface, &ix.rooms)
	if l.Price > 0 {
		switch l.Kind {
		case domain.KindRental:
			ix.rentalPrice.add(l.Price)
		case domain.KindPurchase:
			ix.purchasePrice.add(l.Price)
		}
	}

	if l.Rooms == nil {
		ix.unknownRooms++
	} else {
		ix.roomCounts[*l.Rooms]++
	}

	if l.Neighborhood == nil {
		return
	}
	h, ok := ix.byName[*l.Neighborhood]
	if !ok {
		h = &hood{name: *l.Neighborhood, byRooms: make(map[int]*roomPair)}
		ix.byName[h.name] = h
		ix.hoods = append(ix.hoods, h)
	}
	h.add(l)
}

func (h *hood) add(l *domain.Listing) {
	h.total++
	observeFields(l, &h.price, &h.surface, &h.rooms)

	switch l.Kind {
	case domain.KindRental:
		h.rentals++
	case domain.KindPurchase:
		h.purchases++
	default:
		return
	}
	if l.Rooms == nil || l.Price <= 0 {
		return
	}
	p, ok := h.byRooms[*l.Rooms]
	if !ok {
		p = &roomPair{}
		h.byRooms[*l.Rooms] = p
	}
	if l.Kind == domain.KindRental {
		p.rental.add(l.Price)
	} else {
		p.purchase.add(l.Price)
	}
}

// observeFields applies the validity rules shared by the global and the
// per-neighborhood aggregates.
func observeFields(l *domain.Listing, price, surface, rooms *summary) {
	if l.Price > 0 {
		price.add(l.Price)
	}
	if l.Surface != nil && *l.Surface > 0 {
		surface.add(*l.Surface)
	}
	if l.Rooms != nil && *l.Rooms >= 0 {
		rooms.add(float64(*l.Rooms))
	}
}

// distribution returns the room histogram in presentation order.
func (ix *index) distribution() domain.RoomsDistribution {
	keys := make([]int, 0, len(ix.roomCounts))
	for k := range ix.roomCounts {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make(domain.RoomsDistribution, 0, len(keys)+1)
	for _, k := range keys {
		k := k
		out = append(out, domain.RoomBucket{Rooms: &k, Count: ix.roomCounts[k]})
	}
	if ix.unknownRooms > 0 {
		out = append(out, domain.RoomBucket{Count: ix.unknownRooms})
	}
	return out
}

// yield is the unweighted mean, over room counts priced on both sides, of
// annual rent as a percentage of purchase price. Room counts are visited in
// ascending order so the sum is reproducible.
func (h *hood) yield() *float64 {
	if h.rentals == 0 || h.purchases == 0 {
		return nil
	}
	keys := make([]int, 0, len(h.byRooms))
	for k := range h.byRooms {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var sum float64
	var n int
	for _, k := range keys {
		p := h.byRooms[k]
		if p.rental.empty() || p.purchase.empty() {
			continue
		}
		avgPurchase := p.purchase.mean()
		if avgPurchase <= 0 {
			continue
		}
		sum += (p.rental.mean() * 12 / avgPurchase) * 100
		n++
	}
	if n == 0 {
		return nil
	}
	y := sum / float64(n)
	return &y
}
