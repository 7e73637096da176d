// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"pisos/internal/app"
	"pisos/internal/domain"
)

const maxBodyBytes = 10 << 20

type Handlers struct {
	Q *app.QueryService
	C *app.CatalogService
	I *app.ImportService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/stats", h.stats)
		r.Get("/listings", h.listListings)
		r.Post("/listings", h.createListing)
		r.Put("/listings/{id}", h.updateListing)
		r.Delete("/listings/{id}", h.deleteListing)
		r.Post("/import", h.importListings)
		r.Get("/neighborhoods", h.neighborhoods)
		r.Get("/provinces", h.provinces)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors to problem responses; anything unknown is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidListing):
		writeProblem(w, http.StatusBadRequest, "Invalid Listing", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "listing not found")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: v}); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// parseCriteria reads type, neighborhood, province and maxPrice. Unknown
// types and "all" mean no kind filter.
func parseCriteria(r *http.Request) (domain.Criteria, error) {
	q := r.URL.Query()
	c := domain.Criteria{Kind: domain.ParseKind(q.Get("type"))}
	if v := strings.TrimSpace(q.Get("neighborhood")); v != "" {
		c.Neighborhood = &v
	}
	if v := strings.TrimSpace(q.Get("province")); v != "" {
		c.Province = &v
	}
	if v := strings.TrimSpace(q.Get("maxPrice")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Criteria{}, errors.New("maxPrice must be a number")
		}
		c.MaxPrice = &f
	}
	return c, nil
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	c, err := parseCriteria(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	out, err := h.Q.Stats(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag, body := calcETagAndBody(envelope{Success: true, Data: out})
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write stats body")
	}
}

func (h *Handlers) listListings(w http.ResponseWriter, r *http.Request) {
	c, err := parseCriteria(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}
	out, err := h.Q.ListListings(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be JSON")
		return false
	}
	return true
}

func listingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return 0, false
	}
	return id, true
}

func (h *Handlers) createListing(w http.ResponseWriter, r *http.Request) {
	var rec map[string]any
	if !decodeBody(w, r, &rec) {
		return
	}
	l, err := h.C.CreateListing(r.Context(), rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, l)
}

func (h *Handlers) updateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	var rec map[string]any
	if !decodeBody(w, r, &rec) {
		return
	}
	patch, err := app.PatchFromRecord(rec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := h.C.UpdateListing(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, l)
}

func (h *Handlers) deleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := listingID(w, r)
	if !ok {
		return
	}
	if err := h.C.DeleteListing(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"id": id})
}

// importListings accepts a bare array, a single record or {"listings": [...]}.
func (h *Handlers) importListings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	records, err := app.DecodeRecords(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(records) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected a non-empty array of listings")
		return
	}
	writeData(w, http.StatusOK, h.I.Import(r.Context(), records))
}

func (h *Handlers) neighborhoods(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := domain.NeighborhoodQuery{All: qs.Get("all") == "true"}
	if q.All {
		if p := strings.TrimSpace(qs.Get("province")); p != "" {
			q.Province = &p
		}
	} else {
		q.Kind = domain.ParseKind(qs.Get("type"))
	}
	out, err := h.Q.Neighborhoods(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handlers) provinces(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Provinces(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

type healthReport struct {
	Success      bool                  `json:"success"`
	Status       string                `json:"status"`
	Timestamp    time.Time             `json:"timestamp"`
	ResponseTime string                `json:"responseTime"`
	Database     healthDatabase        `json:"database"`
	Error        string                `json:"error,omitempty"`
	Tables       *domain.CatalogCounts `json:"tables,omitempty"`
}

type healthDatabase struct {
	Connected bool `json:"connected"`
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	counts, err := h.Q.Health(r.Context())
	rep := healthReport{Timestamp: start.UTC()}
	status := http.StatusOK
	if err != nil {
		log.Warn().Err(err).Msg("health check failed")
		rep.Status = "unhealthy"
		rep.Error = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		rep.Success = true
		rep.Status = "healthy"
		rep.Database.Connected = true
		rep.Tables = &counts
	}
	rep.ResponseTime = time.Since(start).Round(time.Millisecond).String()

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Error().Err(err).Msg("write health response failed")
	}
}
