package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/domain"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/health"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/handler"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/middleware"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/http/response"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	DomainHandler    *handler.DomainHandler
	JWTManager       *security.JWTManager
	Readiness        *health.ProbeRunner
	CORSOrigins      []string
	APIRateLimitRPM  int
	AuthRateLimitRPM int
	GlobalLimiter    func(http.Handler) http.Handler
	AuthLimiter      func(http.Handler) http.Handler
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalLimiter != nil {
		r.Use(dep.GlobalLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.JWTManager)
	requireAdmin := middleware.RequireRole(domain.RoleAdmin)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			// Refresh accepts an expired access token; it validates the
			// bearer itself instead of sitting behind requireAuth.
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.With(authLimiter).Post("/logout", dep.AuthHandler.Logout)
		})

		r.With(requireAuth).Get("/me", dep.AuthHandler.Me)

		r.Route("/domains", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", dep.DomainHandler.Create)
			r.Get("/", dep.DomainHandler.List)
			r.Get("/{domain_id}", dep.DomainHandler.Get)
			r.Get("/{domain_id}/api-key", dep.DomainHandler.APIKey)
			r.With(requireAdmin).Delete("/{domain_id}", dep.DomainHandler.Delete)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
