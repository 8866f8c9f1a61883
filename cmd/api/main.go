package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/invoicehub/internal/accounts"
	"github.com/geocoder89/invoicehub/internal/auth"
	"github.com/geocoder89/invoicehub/internal/config"
	"github.com/geocoder89/invoicehub/internal/db"
	httpx "github.com/geocoder89/invoicehub/internal/http"
	"github.com/geocoder89/invoicehub/internal/invoices"
	"github.com/geocoder89/invoicehub/internal/notifications"
	"github.com/geocoder89/invoicehub/internal/observability"
	"github.com/geocoder89/invoicehub/internal/repo/memory"
	mongorepo "github.com/geocoder89/invoicehub/internal/repo/mongo"
	"github.com/geocoder89/invoicehub/internal/repo/postgres"
	"github.com/geocoder89/invoicehub/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type stores struct {
	users    accounts.UserStore
	invoices invoices.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "invoicehub", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		tctx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(tctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	st, err := openStores(ctx, cfg, prom)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = db.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			// limits fall back to per-instance counters
			log.Warn("redis unavailable, using in-memory rate limits", "err", err)
		} else {
			defer rdb.Close()
		}
	}

	v := validation.New()
	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)

	accountSvc := accounts.NewService(st.users, tokens, v)
	accountSvc.CachePrincipals(30 * time.Second)
	invoiceSvc := invoices.NewService(st.invoices, v)

	var webhook notifications.WebhookPoster
	if cfg.WebhookURL != "" {
		webhook = notifications.NewHTTPWebhook(cfg.WebhookURL, &http.Client{Timeout: 10 * time.Second})
	} else {
		log.Info("webhook disabled: ZAPIER_WEBHOOK_URL not set")
	}

	mailer := notifications.NewSMTPMailer(cfg.Email, log)
	notifySvc := notifications.NewService(invoiceSvc, mailer, webhook, log, prom)

	router := httpx.NewRouter(httpx.Deps{
		Config:        cfg,
		Log:           log,
		Prom:          prom,
		Gatherer:      reg,
		Accounts:      accountSvc,
		Invoices:      invoiceSvc,
		Notifications: notifySvc,
		Ping:          st.ping,
		Redis:         rdb,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// overdue batches send one email per invoice
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return
	}

	log.Info("shutdown complete")
}

func openStores(ctx context.Context, cfg config.Config, prom *observability.Prom) (stores, error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return stores{}, err
		}
		return stores{
			users:    mongorepo.NewUsersRepo(database, prom),
			invoices: mongorepo.NewInvoicesRepo(database, prom),
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return stores{}, fmt.Errorf("postgres connect: %w", err)
		}
		if err := db.Migrate(pool); err != nil {
			pool.Close()
			return stores{}, err
		}
		return stores{
			users:    postgres.NewUsersRepo(pool, prom),
			invoices: postgres.NewInvoicesRepo(pool, prom),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	default:
		slog.Warn("using in-memory store, data is lost on restart")
		return stores{
			users:    memory.NewUsersRepo(),
			invoices: memory.NewInvoicesRepo(),
			close:    func() {},
		}, nil
	}
}
