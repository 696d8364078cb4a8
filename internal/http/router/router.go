package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ayolclub/travel-auth/internal/health"
	"github.com/ayolclub/travel-auth/internal/http/handler"
	"github.com/ayolclub/travel-auth/internal/http/middleware"
	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	TelegramHandler   *handler.TelegramHandler
	ProfileHandler    *handler.ProfileHandler
	Sessions          service.SessionResolver
	Cookies           *security.CookieManager
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

const defaultBodyLimit = 1 << 20

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.LoadSession(dep.Sessions, dep.Cookies))
	r.Use(middleware.StructuredRequestLogger)
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}
	smallBody := middleware.BodyLimit(defaultBodyLimit)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, r, response.Body{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.OK(w, r, response.Body{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.OK(w, r, response.Body{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "dependencies are not ready", response.Body{"checks": results})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(smallBody, authLimiter)
			r.Post("/request-code", dep.AuthHandler.RequestCode)
			r.Post("/verify-code", dep.AuthHandler.VerifyCode)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/password/reset-request", dep.AuthHandler.PasswordResetRequest)
			r.Post("/password/reset-confirm", dep.AuthHandler.PasswordResetConfirm)
			r.Post("/telegram/login", dep.TelegramHandler.Login)
			r.Get("/telegram/callback", dep.TelegramHandler.Callback)
			r.Post("/telegram/requests", dep.TelegramHandler.CreateRequest)
			r.Post("/telegram/bot-confirm", dep.TelegramHandler.BotConfirm)
		})
		csrf := middleware.CSRF(dep.Cookies)
		r.With(smallBody, csrf).Post("/logout", dep.AuthHandler.Logout)
		r.Get("/me", dep.AuthHandler.Me)
		// Polled every few seconds by the browser, so only the global limiter applies.
		r.Get("/telegram/requests/{rid}", dep.TelegramHandler.RequestStatus)
		r.With(middleware.RequireSession, csrf, middleware.BodyLimit(handler.MaxAvatarRequestBytes)).
			Post("/upload-avatar", dep.ProfileHandler.UploadAvatar)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
