package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bobinator/internal/platform/health"
	"bobinator/internal/verification/handler"
	"bobinator/pkg/platform/middleware/request"
)

const defaultRequestTimeout = 60 * time.Second

// Deps are the handlers and middleware settings the router mounts.
type Deps struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	RequestMetrics *request.Metrics
	Gatherer       prometheus.Gatherer
	Health         *health.Handler
	Verification   *handler.Handler
}

// NewRouter wires every public endpoint behind the shared middleware stack.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Latency(d.RequestMetrics))

	d.Health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	// A full re-verification outlives any sensible request timeout.
	d.Verification.RegisterAdmin(r)

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(d.RequestTimeout))
		d.Verification.Register(r)
	})

	return r
}
