package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// Criteria narrows the listing collection. Zero value matches everything.
type Criteria struct {
	Kind         Kind
	Neighborhood *string
	Province     *string
	MaxPrice     *float64 // inclusive
}

// Stats is the aggregate view returned by the stats endpoint.
type Stats struct {
	Total             int               `json:"total"`
	AvgPrice          float64           `json:"avgPrice"`
	MinPrice          float64           `json:"minPrice"`
	MaxPrice          float64           `json:"maxPrice"`
	AvgPriceRental    *float64          `json:"avgPriceRental"`
	AvgPriceCompra    *float64          `json:"avgPriceCompra"`
	AvgSurface        float64           `json:"avgSurface"`
	MinSurface        float64           `json:"minSurface"`
	MaxSurface        float64           `json:"maxSurface"`
	AvgRooms          float64           `json:"avgRooms"`
	RoomsDistribution RoomsDistribution `json:"roomsDistribution"`
	ByNeighborhood    NeighborhoodList  `json:"byNeighborhood"`
}

// RoomBucket is one histogram entry. Rooms is nil for the "N/A" bucket.
type RoomBucket struct {
	Rooms *int
	Count int
}

// RoomsUnknownLabel is the histogram key for listings without a room count.
const RoomsUnknownLabel = "N/A"

func (b RoomBucket) Label() string {
	if b.Rooms == nil {
		return RoomsUnknownLabel
	}
	return strconv.Itoa(*b.Rooms)
}

// RoomsDistribution is kept in presentation order: numeric ascending, "N/A" last.
type RoomsDistribution []RoomBucket

// Counts returns the distribution keyed by label.
func (d RoomsDistribution) Counts() map[string]int {
	out := make(map[string]int, len(d))
	for _, b := range d {
		out[b.Label()] = b.Count
	}
	return out
}

// MarshalJSON renders the distribution as an object whose keys keep slice order.
func (d RoomsDistribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, b := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(b.Label())
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(b.Count))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the object form produced by MarshalJSON. Key order
// of a JSON object is not recoverable through encoding/json, so buckets are
// re-sorted into presentation order.
func (d *RoomsDistribution) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := make(RoomsDistribution, 0, len(m))
	var unknown *RoomBucket
	for k, c := range m {
		if k == RoomsUnknownLabel {
			unknown = &RoomBucket{Count: c}
			continue
		}
		n, err := strconv.Atoi(k)
		if err != nil {
			return err
		}
		out = append(out, RoomBucket{Rooms: &n, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Rooms < *out[j].Rooms })
	if unknown != nil {
		out = append(out, *unknown)
	}
	*d = out
	return nil
}

type NeighborhoodStats struct {
	Name             string   `json:"-"`
	Total            int      `json:"total"`
	AvgPrice         float64  `json:"avgPrice"`
	MinPrice         float64  `json:"minPrice"`
	MaxPrice         float64  `json:"maxPrice"`
	AvgSurface       float64  `json:"avgSurface"`
	AvgRooms         float64  `json:"avgRooms"`
	AvgProfitability *float64 `json:"avgProfitability"`
}

// NeighborhoodList is ordered by AvgProfitability descending, nulls last.
type NeighborhoodList []NeighborhoodStats

// Get returns the entry for name, if present.
func (l NeighborhoodList) Get(name string) (NeighborhoodStats, bool) {
	for _, n := range l {
		if n.Name == name {
			return n, true
		}
	}
	return NeighborhoodStats{}, false
}

// MarshalJSON renders the list as an object keyed by neighborhood name,
// keys in list order.
func (l NeighborhoodList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(n.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the object form back in document order, which is what
// the cache round-trip needs to preserve the ranking.
func (l *NeighborhoodList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	if _, err := dec.Token(); err != nil { // {
		return err
	}
	out := NeighborhoodList{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var n NeighborhoodStats
		if err := dec.Decode(&n); err != nil {
			return err
		}
		n.Name = name
		out = append(out, n)
	}
	*l = out
	return nil
}
