package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/yndnr/respkv/internal/server/httpserver/handler"
	"github.com/yndnr/respkv/internal/telemetry/metric"
)

// RouterConfig holds the dependencies of the admin router.
type RouterConfig struct {
	Metrics   *metric.Registry
	Readiness func() error
	Logger    *slog.Logger
}

// NewRouter builds the admin router:
//
//	GET /metrics  Prometheus exposition
//	GET /healthz  liveness and readiness
//	GET /version  build information
func NewRouter(cfg RouterConfig) http.Handler {
	h := handler.New(handler.WithReadiness(cfg.Readiness))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, middleware.RequestID, RequestLogger(cfg.Logger))

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}
	r.Get("/healthz", h.Health)
	r.Get("/version", h.Version)

	return r
}
