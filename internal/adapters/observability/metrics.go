package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pisos", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pisos", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pisos", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pisos", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pisos", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del|incr
	)
	StatsComputations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pisos", Name: "stats_compute_duration_seconds",
			Help:    "Time spent aggregating a listing snapshot.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"kind"},
	)
	StatsListings = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pisos", Name: "stats_snapshot_listings",
			Help:    "Listings in each aggregated snapshot.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
	ImportRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "pisos", Name: "import_records_total", Help: "Imported scraper records by outcome."},
		[]string{"outcome"}, // imported|skipped|error
	)
)

// Serve exposes reg on a dedicated addr in the background. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		StatsComputations, StatsListings, ImportRecords)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) {
	CacheEvents.WithLabelValues(cache, event).Inc()
}

// ObserveStats records one engine run. kind is the criteria kind, "all" when unset.
func ObserveStats(kind string, listings int, dur time.Duration) {
	if kind == "" {
		kind = "all"
	}
	StatsComputations.WithLabelValues(kind).Observe(dur.Seconds())
	StatsListings.Observe(float64(listings))
}

func ObserveImport(imported, skipped, errs int) {
	ImportRecords.WithLabelValues("imported").Add(float64(imported))
	ImportRecords.WithLabelValues("skipped").Add(float64(skipped))
	ImportRecords.WithLabelValues("error").Add(float64(errs))
}
