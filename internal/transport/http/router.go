// Package httptransport assembles the HTTP surface: the middleware chain,
// the module handlers and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"circulation/pkg/platform/httputil"
	authmw "circulation/pkg/platform/middleware/auth"
	"circulation/pkg/platform/middleware/metadata"
	metricsmw "circulation/pkg/platform/middleware/metrics"
	"circulation/pkg/platform/middleware/request"
)

const defaultRequestTimeout = 10 * time.Second

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Logger         *slog.Logger
	Observer       metricsmw.RequestObserver
	MetricsHandler http.Handler
	Validator      authmw.TokenValidator
	Revocations    authmw.TokenRevocationChecker
	Handlers       []Registrar
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
}

// NewRouter builds the root handler. Authentication is optional at this
// layer; each route applies its own access check.
func NewRouter(deps Dependencies) http.Handler {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(deps.Logger))
	if deps.Observer != nil {
		r.Use(metricsmw.LatencyMiddleware(deps.Observer))
	}

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/healthz", healthHandler(deps.HealthChecks))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.Authenticate(deps.Validator, deps.Revocations, deps.Logger))
		for _, h := range deps.Handlers {
			h.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
