package http

import (
	"net/http"

	"github.com/challenges-api/internal/application/account"
	"github.com/challenges-api/internal/application/credential"
	"github.com/challenges-api/internal/application/profile"
	"github.com/challenges-api/internal/application/session"
	"github.com/challenges-api/internal/config"
	"github.com/challenges-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/challenges-api/internal/infrastructure/jwt"
	s3infra "github.com/challenges-api/internal/infrastructure/s3"
	"github.com/challenges-api/internal/infrastructure/smtp"
	"github.com/challenges-api/internal/infrastructure/sns"
	"github.com/challenges-api/internal/transport/http/handler"
	appmiddleware "github.com/challenges-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo       *dynamo.UserRepo
	CredentialRepo *dynamo.CredentialRepo
	SessionRepo    *dynamo.SessionRepo
	ProfileRepo    *dynamo.ProfileRepo
	S3Store        *s3infra.Store
	Mailer         smtp.Mailer
	SMSSender      sns.SMSSender
	JWTProvider    *jwtinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	credentialSvc := credential.NewService(credential.ServiceDeps{
		CredentialRepo:  deps.CredentialRepo,
		UserRepo:        deps.UserRepo,
		SessionRepo:     deps.SessionRepo,
		ProfileRepo:     deps.ProfileRepo,
		Mailer:          deps.Mailer,
		SMSSender:       deps.SMSSender,
		JWTProvider:     deps.JWTProvider,
		VerifyCodeTTL:   cfg.VerifyCodeTTL,
		LoginCodeTTL:    cfg.LoginCodeTTL,
		ResetTokenTTL:   cfg.ResetTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		FrontendBaseURL: cfg.FrontendBaseURL,
	})
	accountSvc := account.NewService(deps.UserRepo, deps.SessionRepo)
	sessionSvc := session.NewService(deps.SessionRepo, deps.UserRepo, deps.JWTProvider, cfg.RefreshTokenTTL)
	profileSvc := profile.NewService(deps.ProfileRepo, deps.S3Store)

	healthH := handler.NewHealthHandler()
	userH := handler.NewUserHandler(accountSvc, credentialSvc)
	authH := handler.NewAuthHandler(credentialSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)
	profileH := handler.NewProfileHandler(profileSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/users/register", userH.Register)
		r.With(sensitiveRL.Limit).Post("/users/verify", authH.Verify)
		r.With(sensitiveRL.Limit).Post("/users/resend-verification", authH.ResendVerification)
		r.With(sensitiveRL.Limit).Post("/users/login", authH.Login)
		r.With(sensitiveRL.Limit).Post("/users/verify-login", authH.VerifyLogin)
		r.With(sensitiveRL.Limit).Post("/users/forgot-password", authH.ForgotPassword)
		r.With(sensitiveRL.Limit).Post("/users/reset-password", authH.ResetPassword)
		r.Post("/sessions/refresh", sessionH.Refresh)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.Get("/users", userH.List)
			r.Get("/users/current", userH.GetCurrent)
			r.Delete("/users/current", userH.DeleteCurrent)
			r.Get("/users/{id}", userH.Get)

			r.Get("/profiles/{id}", profileH.Get)
			r.Put("/profiles/{id}", profileH.Update)
			r.Post("/profiles/avatar", profileH.UploadAvatar)
			r.Delete("/profiles/avatar", profileH.RemoveAvatar)
		})
	})

	return r
}
