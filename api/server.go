/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For, only with TrustProxy
                 (otherwise any client could pick its throttling key)
  3. Logger:     Request logging through zap
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/health, /api/coefficients   Public reads
  /api/valuations/*                Public valuation + report
  /api/auth/*                      Login, logout, session
  /api/admin/*                     Admin session required (requireAdmin)
  /                                Endpoint index page

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authentication and user administration
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/coefficients", h.ListCoefficients)

		// Valuation routes
		r.Route("/valuations", func(r chi.Router) {
			r.Get("/", h.GetValuation)
			r.Post("/", h.CreateValuation)
			r.Get("/report", h.GetReport)
			r.Post("/report", h.CreateReport)
		})

		// Auth routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/session", h.GetSession)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Route("/coefficients", func(r chi.Router) {
				r.Put("/", h.ReplaceCoefficients)
				r.Patch("/{age}", h.UpdateCoefficient)
				r.Post("/reset", h.ResetCoefficients)
				r.Get("/export", h.ExportCoefficients)
				r.Post("/import", h.ImportCoefficients)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Delete("/{username}", h.DeleteUser)
				r.Put("/{username}/password", h.ChangePassword)
			})
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>NudaPro Valuation Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>NudaPro Valuation Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/health">/api/health</a> - Health check</li>
<li><a href="/api/coefficients">/api/coefficients</a> - Coefficient table</li>
<li><a href="/api/valuations?market_value=250000&amp;age1=70">/api/valuations</a> - Valuation (GET or POST)</li>
<li><a href="/api/valuations/report?market_value=250000&amp;age1=70">/api/valuations/report</a> - Text report</li>
<li>/api/auth/login - Login (POST)</li>
<li>/api/admin/* - Table and user administration (admin session)</li>
</ul>
</body>
</html>`))
	})

	return r
}

// requestLogger logs one line per request once the response is written.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
