package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"contactlink/internal/platform/config"
	"contactlink/internal/platform/metrics"
	"contactlink/pkg/platform/httputil"
	"contactlink/pkg/platform/middleware/requestid"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 2 * time.Second

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency can serve traffic.
type HealthCheck func(ctx context.Context) error

// RouterDeps carries what the router wires together.
type RouterDeps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	CORS     config.CORSConfig

	// Ready checks run on GET /ready, keyed by dependency name.
	Ready    map[string]HealthCheck
	Handlers []Registrar
}

// NewRouter wires the shared middleware stack, the operational endpoints and
// every module's routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: deps.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestid.Header},
		ExposedHeaders: []string{requestid.Header},
		MaxAge:         deps.CORS.MaxAge,
	}).Handler)
	r.Use(metrics.LatencyMiddleware(deps.Metrics))

	r.Get("/health", handleHealth)
	r.Get("/ready", readyHandler(deps.Logger, deps.Ready))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))
		r.Use(chimiddleware.AllowContentType("application/json"))
		for _, h := range deps.Handlers {
			h.Register(r)
		}
	})
	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func readyHandler(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			err := checks[name](ctx)
			cancel()
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "readiness check failed", "check", name, "error", err)
				}
				resp.Checks[name] = "unavailable"
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
