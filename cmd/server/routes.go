package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bountyboard/bounty-server/internal/auth"
	"github.com/bountyboard/bounty-server/internal/config"
	"github.com/bountyboard/bounty-server/internal/handlers"
	"github.com/bountyboard/bounty-server/internal/middleware"
	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/services"
)

// app bundles everything the router serves
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	issuer   *auth.Issuer
	gatherer prometheus.Gatherer

	health   *handlers.HealthHandler
	accounts *handlers.AccountHandler
	programs *handlers.ProgramHandler
	reports  *handlers.ReportHandler
	activity *handlers.ActivityHandler
	stats    *handlers.StatsHandler
}

func newApp(cfg *config.Config, logger *zap.Logger, deps services.Deps, health handlers.Pinger, gatherer prometheus.Gatherer) *app {
	sugar := logger.Sugar()
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	reportSvc := services.NewReportService(deps.Store, deps.Cache, deps.Metrics, sugar)

	return &app{
		cfg:      cfg,
		logger:   logger,
		issuer:   issuer,
		gatherer: gatherer,

		health:   handlers.NewHealthHandler(deps.Store, health, sugar),
		accounts: handlers.NewAccountHandler(services.NewAccountService(deps.Store, issuer, sugar), sugar),
		programs: handlers.NewProgramHandler(services.NewProgramService(deps.Store, sugar), sugar),
		reports:  handlers.NewReportHandler(reportSvc, sugar),
		activity: handlers.NewActivityHandler(reportSvc, sugar),
		stats:    handlers.NewStatsHandler(services.NewStatsService(deps.Store, deps.Cache, sugar), sugar),
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	authn := middleware.RequireAuth(a.issuer)
	limit := middleware.RateLimit(a.cfg.RateLimitRPM)
	only := middleware.RequireRole

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", a.health.Check)
		r.Get("/health/ready", a.health.Ready)

		// Public endpoints
		public := r.With(limit)
		public.Post("/auth/signup", a.accounts.Signup)
		public.Post("/auth/login", a.accounts.Login)
		public.Get("/programs", a.programs.List)
		public.Get("/programs/{id}", a.programs.Get)
		public.Post("/programs/bounty-range", a.programs.BountyRange)
		public.Get("/stats/researchers/{id}", a.stats.Researcher)
		public.Get("/stats/leaderboard", a.stats.Leaderboard)

		// Authenticated endpoints; limits apply per account
		authed := r.With(authn, limit)
		authed.Get("/accounts/me", a.accounts.Me)
		authed.Get("/accounts/{id}", a.accounts.Get)
		authed.Delete("/accounts/{id}", a.accounts.Delete)

		company := authed.With(only(models.RoleCompany))
		company.Post("/programs", a.programs.Create)
		company.Put("/programs/{id}", a.programs.Update)
		company.Delete("/programs/{id}", a.programs.Delete)

		authed.Get("/reports", a.reports.List)
		authed.With(only(models.RoleResearcher)).Post("/reports", a.reports.Submit)
		authed.Get("/reports/{id}", a.reports.Get)
		authed.With(only(models.RoleResearcher)).Put("/reports/{id}", a.reports.Update)
		authed.With(only(models.RoleResearcher, models.RoleTriage)).Delete("/reports/{id}", a.reports.Delete)
		authed.With(only(models.RoleTriage, models.RoleCompany)).Post("/reports/{id}/status", a.reports.Transition)
		authed.Get("/reports/{id}/events", a.activity.ByReport)

		reviewers := authed.With(only(models.RoleCompany, models.RoleTriage))
		reviewers.Get("/stats/companies/{id}", a.stats.Company)
		reviewers.Get("/stats/analytics", a.stats.Analytics)
		authed.With(only(models.RoleTriage)).Get("/stats/consistency", a.stats.Consistency)
	})

	return r
}
