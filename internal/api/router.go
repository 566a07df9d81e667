package api

import (
	customMiddleware "github.com/traderguard/authcore/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"golang.org/x/time/rate"
)

// NewRouter builds authcore's chi router. Protected operations (password
// change, MFA enroll) need no auth middleware of their own — they extract
// the bearer token themselves and run through facade.Invoke, which
// authenticates, authorises, and always audits (spec.md §4.11).
func NewRouter(s *Server, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(customMiddleware.RequestLogger)
	r.Use(customMiddleware.PanicRecovery)

	limiter := customMiddleware.NewIPRateLimiter(rate.Limit(5), 10)
	r.Use(limiter.Middleware)
	r.Use(customMiddleware.CORS(allowedOrigins))

	r.Get("/health", s.HealthHandler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.Post("/refresh", s.Refresh)
		r.Post("/logout", s.Logout)

		r.Post("/password/reset/initiate", s.InitiateReset)
		r.Post("/password/reset/complete", s.CompleteReset)

		r.Post("/mfa/verify", s.VerifyMFA)

		r.Get("/verify/email/{token}", s.VerifyEmail)
		r.Post("/verify/email/resend", s.ResendVerification)

		// Protected: authenticated via facade.Invoke inside the handler,
		// CSRF still enforced at the edge for browser clients.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.CSRFMiddleware)
			r.Post("/password/change", s.ChangePassword)
			r.Post("/mfa/enroll", s.Enroll)
		})
	})

	return r
}
