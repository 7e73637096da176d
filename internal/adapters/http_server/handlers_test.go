package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	httpserver "pisos/internal/adapters/http_server"
	redisad "pisos/internal/adapters/redis"
	"pisos/internal/app"
	"pisos/internal/domain"
	"pisos/internal/stats"
)

// ---- in-memory repository ----

type memRepo struct {
	listings []domain.Listing
	hoods    []domain.Neighborhood
	nextID   int64
	down     bool
}

var errDown = errors.New("connection refused")

func (m *memRepo) CreateListing(ctx context.Context, l domain.Listing) (int64, error) {
	m.nextID++
	l.ID = m.nextID
	l.CreatedAt = time.Now()
	m.listings = append(m.listings, l)
	return l.ID, nil
}

func (m *memRepo) UpdateListing(ctx context.Context, id int64, p domain.ListingPatch) (domain.Listing, error) {
	for i := range m.listings {
		if m.listings[i].ID == id {
			if p.Price != nil {
				m.listings[i].Price = *p.Price
			}
			if p.Title != nil {
				m.listings[i].Title = p.Title
			}
			return m.listings[i], nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (m *memRepo) DeleteListing(ctx context.Context, id int64) error {
	for i := range m.listings {
		if m.listings[i].ID == id {
			m.listings = append(m.listings[:i], m.listings[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memRepo) UpsertNeighborhood(ctx context.Context, n domain.Neighborhood) error {
	m.hoods = append(m.hoods, n)
	return nil
}

func (m *memRepo) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	for _, l := range m.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (m *memRepo) ExistsByLink(ctx context.Context, link string) (bool, error) {
	for _, l := range m.listings {
		if l.Link == link {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListListings(ctx context.Context, c domain.Criteria) ([]domain.Listing, error) {
	if m.down {
		return nil, errDown
	}
	return stats.Resolve(c, m.listings), nil
}

func (m *memRepo) ListNeighborhoods(ctx context.Context, q domain.NeighborhoodQuery) ([]string, error) {
	var out []string
	for _, n := range m.hoods {
		if q.Province == nil || (n.Province != nil && *n.Province == *q.Province) {
			out = append(out, n.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRepo) ListProvinces(ctx context.Context) ([]string, error) { return []string{"Murcia"}, nil }

func (m *memRepo) Counts(ctx context.Context) (domain.CatalogCounts, error) {
	if m.down {
		return domain.CatalogCounts{}, errDown
	}
	return domain.CatalogCounts{Listings: int64(len(m.listings)), Neighborhoods: int64(len(m.hoods))}, nil
}

// ---- harness ----

func newTestServer(t *testing.T, repo *memRepo) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Q: app.NewQueryService(repo, cache, time.Minute),
		C: app.NewCatalogService(repo, cache, "Murcia"),
		I: app.NewImportService(repo, cache, "Murcia"),
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any, hdr map[string]string) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

type statsEnvelope struct {
	Success bool         `json:"success"`
	Data    domain.Stats `json:"data"`
}

func seedRepo() *memRepo {
	r := &memRepo{}
	hood := func(s string) *string { return &s }
	two := 2
	ctx := context.Background()
	_, _ = r.CreateListing(ctx, domain.Listing{Kind: domain.KindRental, Price: 600, Rooms: &two, Link: "https://x/1", Neighborhood: hood("Vistalegre")})
	_, _ = r.CreateListing(ctx, domain.Listing{Kind: domain.KindPurchase, Price: 80000, Rooms: &two, Link: "https://x/2", Neighborhood: hood("Vistalegre")})
	_, _ = r.CreateListing(ctx, domain.Listing{Kind: domain.KindRental, Price: 400, Link: "https://x/3", Neighborhood: hood("Espinardo")})
	return r
}

// ---- tests ----

func TestStats_EnvelopeAndETag(t *testing.T) {
	ts := newTestServer(t, seedRepo())

	res := do(t, http.MethodGet, ts.URL+"/api/stats", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	etag := res.Header.Get("ETag")
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("missing weak ETag: %q", etag)
	}
	var env statsEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success || env.Data.Total != 3 {
		t.Fatalf("unexpected body: %+v", env)
	}
	if env.Data.ByNeighborhood[0].Name != "Vistalegre" || *env.Data.ByNeighborhood[0].AvgProfitability != 9 {
		t.Fatalf("ordering/yield: %+v", env.Data.ByNeighborhood)
	}

	res2 := do(t, http.MethodGet, ts.URL+"/api/stats", nil, map[string]string{"If-None-Match": etag})
	if res2.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", res2.StatusCode)
	}
}

func TestStats_QueryFilters(t *testing.T) {
	ts := newTestServer(t, seedRepo())

	res := do(t, http.MethodGet, ts.URL+"/api/stats?type=alquiler&maxPrice=500", nil, nil)
	var env statsEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Data.Total != 1 || env.Data.AvgPriceRental != nil {
		t.Fatalf("filtered stats: %+v", env.Data)
	}

	// unknown type is no filter
	res = do(t, http.MethodGet, ts.URL+"/api/stats?type=all", nil, nil)
	env = statsEnvelope{}
	_ = json.NewDecoder(res.Body).Decode(&env)
	if env.Data.Total != 3 {
		t.Fatalf("type=all: %d", env.Data.Total)
	}

	res = do(t, http.MethodGet, ts.URL+"/api/stats?maxPrice=cheap", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad maxPrice: %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type: %q", ct)
	}
}

func TestStats_EmptyCatalog(t *testing.T) {
	ts := newTestServer(t, &memRepo{})
	res := do(t, http.MethodGet, ts.URL+"/api/stats", nil, nil)

	var raw struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw.Data["total"]) != "0" || string(raw.Data["byNeighborhood"]) != "{}" || string(raw.Data["roomsDistribution"]) != "{}" {
		t.Fatalf("empty stats: %s %s %s", raw.Data["total"], raw.Data["byNeighborhood"], raw.Data["roomsDistribution"])
	}
}

func TestListings_CRUD(t *testing.T) {
	repo := seedRepo()
	ts := newTestServer(t, repo)

	// warm the stats cache, then write
	do(t, http.MethodGet, ts.URL+"/api/stats", nil, nil)

	res := do(t, http.MethodPost, ts.URL+"/api/listings", map[string]any{
		"link": "https://x/9", "precio_eur_mes": 700, "barrio": "Espinardo", "habitaciones": 1,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", res.StatusCode)
	}
	var created struct {
		Data domain.Listing `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Data.Kind != domain.KindRental || created.Data.Province == nil {
		t.Fatalf("created: %+v", created.Data)
	}

	res = do(t, http.MethodPost, ts.URL+"/api/listings", map[string]any{"link": "https://x/9", "price": 1}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d", res.StatusCode)
	}
	res = do(t, http.MethodPost, ts.URL+"/api/listings", map[string]any{"price": 100}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status %d", res.StatusCode)
	}

	var env statsEnvelope
	_ = json.NewDecoder(do(t, http.MethodGet, ts.URL+"/api/stats", nil, nil).Body).Decode(&env)
	if env.Data.Total != 4 {
		t.Fatalf("stats must reflect the write, total=%d", env.Data.Total)
	}

	res = do(t, http.MethodPut, ts.URL+"/api/listings/1", map[string]any{"price": "650"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", res.StatusCode)
	}
	if repo.listings[0].Price != 650 {
		t.Fatalf("price not patched: %v", repo.listings[0].Price)
	}
	if res := do(t, http.MethodPut, ts.URL+"/api/listings/abc", map[string]any{}, nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status %d", res.StatusCode)
	}

	if res := do(t, http.MethodDelete, ts.URL+"/api/listings/2", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	if res := do(t, http.MethodDelete, ts.URL+"/api/listings/2", nil, nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status %d", res.StatusCode)
	}

	var list struct {
		Success bool             `json:"success"`
		Data    []domain.Listing `json:"data"`
	}
	_ = json.NewDecoder(do(t, http.MethodGet, ts.URL+"/api/listings?type=alquiler", nil, nil).Body).Decode(&list)
	if !list.Success || len(list.Data) != 3 {
		t.Fatalf("rental listings: %+v", list)
	}
}

func TestImport_ArrayAndWrapped(t *testing.T) {
	repo := &memRepo{}
	ts := newTestServer(t, repo)

	recs := []map[string]any{
		{"link": "https://x/a", "precio_mensual_eur": 500},
		{"link": "https://x/b", "precio_venta_eur": 90000},
	}
	res := do(t, http.MethodPost, ts.URL+"/api/import", recs, nil)
	var out struct {
		Data domain.ImportResult `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Data.Imported != 2 || out.Data.Total != 2 {
		t.Fatalf("array import: %+v", out.Data)
	}

	res = do(t, http.MethodPost, ts.URL+"/api/import", map[string]any{"listings": recs}, nil)
	out.Data = domain.ImportResult{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	if out.Data.Skipped != 2 {
		t.Fatalf("wrapped import should skip existing links: %+v", out.Data)
	}

	if res := do(t, http.MethodPost, ts.URL+"/api/import", []any{}, nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty import status %d", res.StatusCode)
	}
}

func TestNeighborhoodsAndProvinces(t *testing.T) {
	repo := seedRepo()
	murcia := "Murcia"
	repo.hoods = []domain.Neighborhood{{Name: "La Flota", Province: &murcia}, {Name: "Elsewhere"}}
	ts := newTestServer(t, repo)

	var out struct {
		Data []string `json:"data"`
	}
	_ = json.NewDecoder(do(t, http.MethodGet, ts.URL+"/api/neighborhoods?all=true&province=Murcia", nil, nil).Body).Decode(&out)
	if len(out.Data) != 1 || out.Data[0] != "La Flota" {
		t.Fatalf("registered: %v", out.Data)
	}
	out.Data = nil
	_ = json.NewDecoder(do(t, http.MethodGet, ts.URL+"/api/provinces", nil, nil).Body).Decode(&out)
	if len(out.Data) != 1 || out.Data[0] != "Murcia" {
		t.Fatalf("provinces: %v", out.Data)
	}
}

func TestHealth(t *testing.T) {
	repo := seedRepo()
	ts := newTestServer(t, repo)

	res := do(t, http.MethodGet, ts.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	var rep struct {
		Status string `json:"status"`
		Tables struct {
			Listings int64 `json:"listings"`
		} `json:"tables"`
	}
	_ = json.NewDecoder(res.Body).Decode(&rep)
	if rep.Status != "healthy" || rep.Tables.Listings != 3 {
		t.Fatalf("report: %+v", rep)
	}

	repo.down = true
	if res := do(t, http.MethodGet, ts.URL+"/api/health", nil, nil); res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
	if res := do(t, http.MethodGet, ts.URL+"/healthz", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("liveness should not depend on the DB: %d", res.StatusCode)
	}
}

func TestUnknownRouteIsProblem(t *testing.T) {
	ts := newTestServer(t, &memRepo{})
	res := do(t, http.MethodGet, ts.URL+"/api/nope", nil, nil)
	if res.StatusCode != http.StatusNotFound || res.Header.Get("Content-Type") != "application/problem+json" {
		t.Fatalf("got %d %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
}
