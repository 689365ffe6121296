package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/provisioning/api/auth"
	"github.com/driftfs/driftfs/internal/provisioning/api/handlers"
	apimiddleware "github.com/driftfs/driftfs/internal/provisioning/api/middleware"
	"github.com/driftfs/driftfs/pkg/directory/authz"
	"github.com/driftfs/driftfs/pkg/directory/quota"
	"github.com/driftfs/driftfs/pkg/directory/store"
	"github.com/driftfs/driftfs/pkg/directory/twofactor"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics
//   - POST /api/v1/auth/login - User authentication
//   - POST /api/v1/auth/refresh - Token refresh
//   - GET /api/v1/auth/me - Current user info
//   - /api/v1/cloud/users/* - User provisioning
//   - /api/v1/cloud/groups/* - Group provisioning
//
// The /cloud routes answer HTTP 200 with a meta envelope; authorization
// outcomes are carried as domain status codes inside the envelope. The
// sub-admin delegation routes additionally require an admin caller.
func NewRouter(jwtService *auth.JWTService, dirStore store.Store, resolver authz.RoleResolver, storage quota.Resolver, twoFactor twofactor.Manager, metrics *Metrics) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	if metrics != nil {
		r.Use(metrics.Middleware)
	}

	healthHandler := handlers.NewHealthHandler(dirStore)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	authHandler := handlers.NewAuthHandler(dirStore, jwtService)
	userHandler := handlers.NewUserHandler(dirStore, resolver, storage, twoFactor)
	groupHandler := handlers.NewGroupHandler(dirStore, dirStore, resolver)
	subAdminHandler := handlers.NewSubAdminHandler(dirStore, dirStore, dirStore)

	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes - mostly unauthenticated
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.JWTAuth(jwtService))
				r.Get("/me", authHandler.Me)
			})
		})

		// Provisioning routes - authenticated; handlers perform their own
		// per-request role resolution beyond this point
		r.Route("/cloud", func(r chi.Router) {
			r.Use(apimiddleware.JWTAuth(jwtService))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", userHandler.List)
				r.Post("/", userHandler.Create)

				r.Route("/{userId}", func(r chi.Router) {
					r.Get("/", userHandler.Get)
					r.Put("/", userHandler.Edit)
					r.Delete("/", userHandler.Delete)
					r.Put("/enable", userHandler.Enable)
					r.Put("/disable", userHandler.Disable)

					r.Get("/groups", userHandler.Groups)
					r.Post("/groups", userHandler.AddToGroup)
					r.Delete("/groups", userHandler.RemoveFromGroup)

					// Delegation management is reserved for full admins
					r.Group(func(r chi.Router) {
						r.Use(apimiddleware.RequireAdmin(resolver))
						r.Post("/subadmins", subAdminHandler.Add)
						r.Delete("/subadmins", subAdminHandler.Remove)
						r.Get("/subadmins", subAdminHandler.Groups)
					})
				})
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", groupHandler.List)
				r.Get("/{groupId}", groupHandler.Members)

				r.Group(func(r chi.Router) {
					r.Use(apimiddleware.RequireAdmin(resolver))
					r.Post("/", groupHandler.Create)
					r.Delete("/{groupId}", groupHandler.Delete)
					r.Get("/{groupId}/subadmins", groupHandler.SubAdmins)
				})
			})
		})
	})

	return r
}

// isHealthPath returns true if the request path is a healthcheck endpoint.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Healthcheck requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Log healthcheck requests at DEBUG to avoid polluting logs in k8s
		if isHealthPath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
