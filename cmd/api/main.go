package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/synergysphere/internal/cache"
	"github.com/geocoder89/synergysphere/internal/config"
	"github.com/geocoder89/synergysphere/internal/db"
	httpx "github.com/geocoder89/synergysphere/internal/http"
	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/geocoder89/synergysphere/internal/redisclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.ServiceName, cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	if cfg.OTELEnabled {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			log.Error("tracer init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			tctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = shutdownTracer(tctx)
		}()
	}

	pool, err := db.NewPool(cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		mctx, cancel := config.WithTimeout(30 * time.Second)
		err := db.Migrate(mctx, pool, log)
		cancel()
		if err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	sctx, cancel := config.WithTimeout(10 * time.Second)
	created, err := db.EnsureBootstrapUser(sctx, pool, cfg)
	cancel()
	if err != nil {
		log.Error("bootstrap user failed", "err", err)
		os.Exit(1)
	}
	if created {
		log.Info("bootstrap user created", "email", cfg.BootstrapEmail)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)
	if err := observability.RegisterPoolStats(reg, pool); err != nil {
		log.Warn("pool stats not exported", "err", err)
	}

	// unread counts live in redis when configured, in process otherwise
	var (
		rdb     *redisclient.Client
		counter cache.Counter = cache.New(cfg.UnreadCacheTTL)
	)
	if cfg.RedisURL != "" || cfg.RedisAddr != "" {
		rctx, cancel := config.WithTimeout(5 * time.Second)
		client, err := redisclient.Connect(rctx, redisclient.Config{
			URL:      cfg.RedisURL,
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		}, 3)
		cancel()

		if err != nil {
			log.Warn("redis unavailable, using in-process cache", "err", err)
		} else {
			rdb = client
			counter = cache.NewRedis(rdb.Raw(), cfg.UnreadCacheTTL)
			defer rdb.Close()
			log.Info("unread counters backed by redis", "addr", rdb.Addr())
		}
	}

	var shuttingDown atomic.Bool

	// set up routers with the log
	router := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Config:   cfg,
		Pool:     pool,
		Redis:    rdb,
		Counter:  counter,
		Registry: reg,
		Prom:     prom,

		ShuttingDown: shuttingDown.Load,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")
	shuttingDown.Store(true)

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
