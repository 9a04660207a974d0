/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers (rate limiting keys on it)
  3. Logger:     Structured request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Rate limit: Per-IP requests per second (httprate)
  6. CORS:       Cross-origin requests for the intake frontend

ROUTE GROUPS:
  /api/health           Liveness
  /api/calendar         Calendar capacity view
  /api/capacity/*       Capacity configuration
  /api/recurrence/*     Rule previews
  /api/clients/*        Client membership windows
  /api/deliveries/*     Delivery scheduling
  /api/scenarios/*      Demo scenarios (not mounted in production)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins []string

	// RateLimit is requests per second per IP. 0 disables limiting.
	RateLimit int

	// DisableScenarios leaves the store-resetting demo routes unmounted.
	DisableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	if opts.RateLimit > 0 {
		r.Use(httprate.LimitByIP(opts.RateLimit, time.Second))
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/calendar", h.GetCalendar)

		// Capacity routes
		r.Route("/capacity", func(r chi.Router) {
			r.Get("/defaults", h.GetWeeklyDefaults)
			r.Put("/defaults", h.SetWeeklyDefaults)
			r.Get("/{date}", h.GetDayCapacity)
			r.Put("/{date}", h.SetDailyOverride)
		})

		r.Post("/recurrence/expand", h.ExpandRule)

		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Post("/", h.SaveClient)
			r.Get("/{id}", h.GetClient)
		})

		// Delivery routes
		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", h.ListDeliveries)
			r.Post("/", h.CreateDelivery)
			r.Get("/{id}", h.GetDelivery)
			r.Put("/{id}", h.EditDelivery)
			r.Delete("/{id}", h.DeleteDelivery)
		})

		// Scenario routes
		if !opts.DisableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
