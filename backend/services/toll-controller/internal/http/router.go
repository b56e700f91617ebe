package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tollbooth/backend/services/toll-controller/internal/http/handlers"
	"tollbooth/backend/services/toll-controller/internal/http/middleware"
	"tollbooth/backend/services/toll-controller/internal/metrics"
)

// RouterDeps collects handler dependencies. Login and Auth are nil when API auth is
// disabled; Stream is nil when the WebSocket hub is not wired.
type RouterDeps struct {
	Health   http.HandlerFunc
	Login    http.HandlerFunc
	Status   *handlers.StatusHandlers
	Stream   http.HandlerFunc
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
	Auth     func(http.Handler) http.Handler
}

// NewRouter wires the read-only presentation API.
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()
	instrument := middleware.Instrument(deps.Metrics)
	r.Use(instrument)
	r.NotFoundHandler = instrument(http.NotFoundHandler())

	r.HandleFunc("/health", deps.Health).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if deps.Login != nil {
		r.HandleFunc("/auth/login", deps.Login).Methods(http.MethodPost)
	}

	protected := func(h http.Handler) http.Handler {
		if deps.Auth == nil {
			return h
		}
		return deps.Auth(h)
	}

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Handle("/status", protected(http.HandlerFunc(deps.Status.Status))).Methods(http.MethodGet)
	apiV1.Handle("/transactions", protected(http.HandlerFunc(deps.Status.Transactions))).Methods(http.MethodGet)
	apiV1.Handle("/stats", protected(http.HandlerFunc(deps.Status.Stats))).Methods(http.MethodGet)
	apiV1.Handle("/captures/latest", protected(http.HandlerFunc(deps.Status.LatestCapture))).Methods(http.MethodGet)

	if deps.Stream != nil {
		r.Handle("/ws/status", protected(deps.Stream)).Methods(http.MethodGet)
	}
	return r
}
