package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/synergysphere/internal/auth"
	"github.com/geocoder89/synergysphere/internal/authz"
	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/config"
	"github.com/geocoder89/synergysphere/internal/http/handlers"
	"github.com/geocoder89/synergysphere/internal/http/middlewares"
	"github.com/geocoder89/synergysphere/internal/notifications"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/geocoder89/synergysphere/internal/redisclient"
	"github.com/geocoder89/synergysphere/internal/repo/postgres"
	"github.com/geocoder89/synergysphere/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router needs from main. Redis, Counter, Registry
// and Prom are optional; sensible in-process defaults are used when nil.
type Deps struct {
	Log      *slog.Logger
	Config   config.Config
	Pool     *pgxpool.Pool
	Redis    *redisclient.Client
	Counter  cache.Counter
	Registry *prometheus.Registry
	Prom     *observability.Prom

	// ShuttingDown flips /readyz to 503 while the server drains.
	ShuttingDown func() bool
}

func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config

	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	prom := d.Prom
	if prom == nil {
		prom = observability.NewProm(reg)
	}

	counter := d.Counter
	if counter == nil {
		counter = cache.New(cfg.UnreadCacheTTL)
	}

	r := gin.New()

	// middleware

	r.Use(middlewares.Recovery(log))
	r.Use(middlewares.RequestID())
	if cfg.OTELEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(prom.GinHandleMiddleware())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders(middlewares.SecurityOptions{HSTS: cfg.HSTS}))
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	checks := map[string]handlers.Check{
		"postgres": func(ctx context.Context) error { return d.Pool.Ping(ctx) },
	}
	if d.Redis != nil {
		checks["redis"] = d.Redis.Ping
	}

	h := handlers.NewHealthHandler(checks).WithShutdownSignal(d.ShuttingDown)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	// wire up repositories
	usersRepo := postgres.NewUsersRepo(d.Pool, prom)
	refreshRepo := postgres.NewRefreshTokensRepo(d.Pool, prom)
	projectsRepo := postgres.NewProjectsRepo(d.Pool, prom)
	membershipsRepo := postgres.NewMembershipsRepo(d.Pool, prom)
	tasksRepo := postgres.NewTasksRepo(d.Pool, prom)
	messagesRepo := postgres.NewMessagesRepo(d.Pool, prom)
	notificationsRepo := postgres.NewNotificationsRepo(d.Pool, prom)

	jwtManager := auth.NewManager(auth.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	hasher := security.NewHasher(security.DefaultParams)
	guard := authz.NewGuard(projectsRepo, membershipsRepo)
	notifier := notifications.Chain(notificationsRepo, counter, notifications.ProtectedNotifierConfig{}, log, prom)

	// handlers
	authHandler := handlers.NewAuthHandler(usersRepo, refreshRepo, jwtManager, hasher, handlers.AuthOptions{
		RotateRefresh: cfg.RotateRefresh,
		SecureCookies: !cfg.IsDev(),
	}, prom, log)
	projectsHandler := handlers.NewProjectsHandler(projectsRepo, membershipsRepo, usersRepo, tasksRepo, notifier)
	tasksHandler := handlers.NewTasksHandler(tasksRepo, guard, notifier)
	messagesHandler := handlers.NewMessagesHandler(messagesRepo, membershipsRepo, notifier)
	notificationsHandler := handlers.NewNotificationsHandler(notificationsRepo, counter, prom)

	authMW := middlewares.NewAuthMiddleware(jwtManager)
	limiter := middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)

	// auth routes
	authGroup := r.Group("/auth")
	authGroup.POST("/register", limiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Register)
	authGroup.POST("/login", limiter.RateLimiterMiddleware(middlewares.KeyByIP), authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", authMW.RequireAuth(), authHandler.Me)

	var postLimit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.MessageRateLimit > 0 {
		postLimit = middlewares.NewRateLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow).
			RateLimiterMiddleware(middlewares.KeyByUserOrIP)
	}

	protected := r.Group("/", authMW.RequireAuth())

	protected.POST("/projects", projectsHandler.Create)
	protected.GET("/projects", projectsHandler.List)

	// project-scoped routes; :id is the project id
	p := protected.Group("/projects/:id")
	p.GET("", access(guard, authz.ActionView), projectsHandler.Get)
	p.PUT("", access(guard, authz.ActionUpdateProject), projectsHandler.Update)
	p.DELETE("", access(guard, authz.ActionDeleteProject), projectsHandler.Delete)
	p.POST("/invite", access(guard, authz.ActionManageMembers), projectsHandler.Invite)
	p.GET("/members", access(guard, authz.ActionView), projectsHandler.Members)
	p.DELETE("/members/:userId", access(guard, authz.ActionManageMembers), projectsHandler.RemoveMember)
	p.GET("/overview", access(guard, authz.ActionView), projectsHandler.Overview)
	p.POST("/tasks", access(guard, authz.ActionContribute), tasksHandler.Create)
	p.GET("/tasks", access(guard, authz.ActionView), tasksHandler.List)
	p.POST("/messages", access(guard, authz.ActionContribute), postLimit, messagesHandler.Create)
	p.GET("/messages", access(guard, authz.ActionView), messagesHandler.List)

	// tasks resolve their project themselves
	protected.GET("/tasks/:id", tasksHandler.Get)
	protected.PUT("/tasks/:id", tasksHandler.Update)
	protected.DELETE("/tasks/:id", tasksHandler.Delete)

	protected.GET("/notifications", notificationsHandler.List)
	protected.GET("/notifications/unread-count", notificationsHandler.UnreadCount)
	protected.PUT("/notifications/mark-all-read", notificationsHandler.MarkAllRead)
	protected.PUT("/notifications/:id/read", notificationsHandler.MarkRead)

	return r
}

func access(guard *authz.Guard, action authz.Action) gin.HandlerFunc {
	return middlewares.RequireProjectAccess(guard, action)
}
