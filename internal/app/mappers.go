package app

import (
	"fmt"
	"strconv"
	"strings"

	"pisos/internal/domain"
)

/********** alias registry (scraper and form field names) **********/

var listingAliases = map[string][]string{
	"rent_price":    {"precio_mensual_eur", "precio_eur_mes"},
	"price":         {"precio_mensual_eur", "precio_eur_mes", "precio_venta_eur", "precio", "price"},
	"surface":       {"m2", "metros_cuadrados", "surface"},
	"neighborhood":  {"barrio", "neighborhood"},
	"city":          {"ciudad", "city"},
	"title":         {"titulo", "title"},
	"address":       {"direccion_publicada", "publishedAddress"},
	"profitability": {"tasa_rentabilidad", "profitabilityRate"},
	"rooms":         {"habitaciones", "rooms"},
}

// knownNeighborhoods canonicalizes the spellings scrapers produce. First
// match wins, so more specific patterns go first.
var knownNeighborhoods = []struct {
	contains  []string
	canonical string
}{
	{[]string{"Juan Carlos I", "Juan de Borbón", "Avenida de Europa"}, "Juan Carlos I (Juan de Borbón)"},
	{[]string{"Santa Eulalia"}, "Centro – Santa Eulalia"},
	{[]string{"Espinardo"}, "Espinardo"},
	{[]string{"San Lorenzo"}, "San Lorenzo"},
	{[]string{"Vistalegre"}, "Vistalegre"},
	{[]string{"El Carmen"}, "El Carmen"},
}

// SeedNeighborhoods is the registered neighborhood list.
var SeedNeighborhoods = []string{
	"La Flota",
	"Juan Carlos I (Juan de Borbón)",
	"Centro – Santa Eulalia",
	"Espinardo",
	"Vistalegre",
	"El Carmen",
	"Pueblo Nuevo",
	"San Lorenzo",
	"San Bartolomé / Centro Histórico",
	"Infante Juan Manuel",
}

/********** tiny helpers **********/

// lookupStr returns the trimmed string at key or "".
func lookupStr(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstNonEmptyAlias(m map[string]any, key string) *string {
	for _, k := range listingAliases[key] {
		if s := lookupStr(m, k); s != "" {
			return &s
		}
	}
	return nil
}

// toFloat accepts float64/int/json numbers and strings like "8,5".
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// firstPositiveAlias returns the first alias holding a number > 0; zero and
// unparsable values fall through to the next alias.
func firstPositiveAlias(m map[string]any, key string) *float64 {
	for _, k := range listingAliases[key] {
		if f, ok := toFloat(m[k]); ok && f > 0 {
			return &f
		}
	}
	return nil
}

// roomsAlias keeps 0 (studio) distinct from an absent or null room count.
func roomsAlias(m map[string]any) *int {
	for _, k := range listingAliases["rooms"] {
		v, present := m[k]
		if !present {
			continue
		}
		if v == nil {
			return nil
		}
		if f, ok := toFloat(v); ok && f >= 0 {
			n := int(f)
			return &n
		}
		return nil
	}
	return nil
}

// splitNeighborhood handles values like "Zona Juan Carlos I - Avenida de Europa, Murcia"
// where the city rides along after the last comma.
func splitNeighborhood(raw string) (hood string, city *string) {
	if !strings.Contains(raw, ",") {
		return raw, nil
	}
	parts := strings.Split(raw, ",")
	c := strings.TrimSpace(parts[len(parts)-1])
	hood = strings.TrimSpace(parts[0])
	if c == "" {
		return hood, nil
	}
	return hood, &c
}

func canonicalNeighborhood(name string) string {
	for _, k := range knownNeighborhoods {
		for _, c := range k.contains {
			if strings.Contains(name, c) {
				return k.canonical
			}
		}
	}
	return name
}

/********** listing mapper **********/

// mapListing normalizes one scraper or form record. It fails only on an
// explicit, unknown type; missing link/price are left to validation.
func mapListing(rec map[string]any, defaultProvince string) (domain.Listing, error) {
	l := domain.Listing{
		Link:              lookupStr(rec, "link"),
		Title:             firstNonEmptyAlias(rec, "title"),
		Surface:           firstPositiveAlias(rec, "surface"),
		Rooms:             roomsAlias(rec),
		ProfitabilityRate: firstPositiveAlias(rec, "profitability"),
		PublishedAddress:  firstNonEmptyAlias(rec, "address"),
		City:              firstNonEmptyAlias(rec, "city"),
	}
	if p := firstPositiveAlias(rec, "price"); p != nil {
		l.Price = *p
	}

	switch t := lookupStr(rec, "type"); {
	case t == "":
		// monthly-price fields only exist on rentals
		if firstPositiveAlias(rec, "rent_price") != nil {
			l.Kind = domain.KindRental
		} else {
			l.Kind = domain.KindPurchase
		}
	case domain.ParseKind(t) != domain.KindAny:
		l.Kind = domain.ParseKind(t)
	default:
		return domain.Listing{}, fmt.Errorf("%w: type must be %q or %q, got %q",
			domain.ErrInvalidListing, domain.KindRental, domain.KindPurchase, t)
	}

	if raw := firstNonEmptyAlias(rec, "neighborhood"); raw != nil {
		hood, city := splitNeighborhood(*raw)
		if city != nil {
			l.City = city
		}
		if hood != "" {
			hood = canonicalNeighborhood(hood)
			l.Neighborhood = &hood
		}
	}

	if p := lookupStr(rec, "province"); p != "" {
		l.Province = &p
	} else if defaultProvince != "" {
		p := defaultProvince
		l.Province = &p
	}
	return l, nil
}

// PatchFromRecord builds a partial update from a request body. Empty and
// zero values leave the stored field unchanged.
func PatchFromRecord(rec map[string]any) (domain.ListingPatch, error) {
	var p domain.ListingPatch
	p.Title = firstNonEmptyAlias(rec, "title")
	p.Price = firstPositiveAlias(rec, "price")
	p.Surface = firstPositiveAlias(rec, "surface")
	p.ProfitabilityRate = firstPositiveAlias(rec, "profitability")
	p.Neighborhood = firstNonEmptyAlias(rec, "neighborhood")
	p.City = firstNonEmptyAlias(rec, "city")
	if l := lookupStr(rec, "link"); l != "" {
		p.Link = &l
	}
	if t := lookupStr(rec, "type"); t != "" {
		k := domain.ParseKind(t)
		if k == domain.KindAny {
			return domain.ListingPatch{}, fmt.Errorf("%w: type must be %q or %q, got %q",
				domain.ErrInvalidListing, domain.KindRental, domain.KindPurchase, t)
		}
		p.Kind = &k
	}
	return p, nil
}
