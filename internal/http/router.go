package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/invoicehub/internal/config"
	"github.com/geocoder89/invoicehub/internal/http/handlers"
	"github.com/geocoder89/invoicehub/internal/http/middlewares"
	"github.com/geocoder89/invoicehub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "invoicehub"

// AccountService covers both the public auth routes and token checks.
type AccountService interface {
	handlers.AccountService
	middlewares.TokenAuthenticator
}

type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Accounts      AccountService
	Invoices      handlers.InvoiceService
	Notifications handlers.NotificationService

	// Ping backs /readyz. Nil means always ready.
	Ping func(ctx context.Context) error
	// Redis, when set, shares auth rate limits across instances.
	Redis *redis.Client
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Config.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.Config.AllowedOrigins()))
	r.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))

	// health
	health := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", middlewares.RequireJSON())

	// auth is public but throttled per client
	var counter middlewares.Counter = middlewares.NewMemoryCounter()
	if d.Redis != nil {
		counter = middlewares.NewRedisCounter(d.Redis)
	}
	authLimiter := middlewares.NewRateLimiter(counter, "ratelimit:auth:", d.Config.AuthRateLimit, d.Config.AuthRateWindow)

	authHandler := handlers.NewAuthHandler(d.Accounts)
	authRoutes := api.Group("/auth", authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	authRoutes.POST("/register", authHandler.Register)
	authRoutes.POST("/login", authHandler.Login)

	requireAuth := middlewares.NewAuthMiddleware(d.Accounts).RequireAuth()

	invoicesHandler := handlers.NewInvoicesHandler(d.Invoices)
	invoiceRoutes := api.Group("/invoices", requireAuth)
	invoiceRoutes.GET("", invoicesHandler.List)
	invoiceRoutes.GET("/overdue", invoicesHandler.ListOverdue)
	invoiceRoutes.GET("/:id", invoicesHandler.Get)
	invoiceRoutes.POST("", invoicesHandler.Create)
	invoiceRoutes.PUT("/by-invoice-id/:invoiceId", invoicesHandler.UpdateByInvoiceID)
	invoiceRoutes.PUT("/:id", invoicesHandler.UpdateByID)
	invoiceRoutes.DELETE("/:id", invoicesHandler.Delete)

	automationHandler := handlers.NewAutomationHandler(d.Notifications)
	// triggers send mail; limited per user
	automationLimiter := middlewares.NewRateLimiter(counter, "ratelimit:automation:", d.Config.AuthRateLimit, d.Config.AuthRateWindow)
	automationRoutes := api.Group("/automation", requireAuth, automationLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	automationRoutes.POST("/trigger-overdue", automationHandler.TriggerOverdue)
	automationRoutes.POST("/trigger-reminder", automationHandler.TriggerReminder)

	return r
}
