package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds router dependencies. Limiter, Ready and Metrics are optional.
type Config struct {
	Service   bookingService
	Logger    *slog.Logger
	JWTSecret string
	Limiter   *RateLimiter
	Ready     func(ctx context.Context) error
	Metrics   http.Handler
}

// NewRouter builds the HTTP API. Health and metrics endpoints are public;
// everything else needs a bearer token.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "http"))
	h := &handlers{svc: cfg.Service, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				log.Warn("readiness check failed", slog.Any("err", err))
				writeError(w, http.StatusServiceUnavailable, "not ready")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(api chi.Router) {
		api.Use(Authenticate(cfg.JWTSecret))
		if cfg.Limiter != nil {
			api.Use(cfg.Limiter.Middleware(log, true))
		}
		api.Use(middleware.AllowContentType("application/json"))

		api.Route("/availabilities", func(av chi.Router) {
			av.With(RequireRole(RoleProvider, RoleAdmin)).Get("/", h.listAvailabilities)
			av.Get("/service/{serviceID}", h.findChains)
			av.With(RequireRole(RoleProvider, RoleAdmin)).Post("/{id}", h.insertAvailabilities)
			av.With(RequireRole(RoleProvider, RoleAdmin)).Delete("/{id}", h.deleteAvailability)
		})

		api.Route("/appointments", func(ap chi.Router) {
			ap.Get("/", h.listAppointments)
			ap.With(RequireRole(RoleClient, RoleAdmin)).Post("/", h.createAppointment)
			ap.Get("/{appointmentID}", h.getAppointment)
			ap.Patch("/{appointmentID}", h.updateAppointment)
			ap.Patch("/cancel/{appointmentID}", h.cancelAppointment)
		})
	})

	return otelhttp.NewHandler(r, "slotbook.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Debug("http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}
