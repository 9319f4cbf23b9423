// Command server runs the CRM HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	app "github.com/ridgeline-labs/minicrm/internal/app"
	"github.com/ridgeline-labs/minicrm/internal/app/httpapi"
	"github.com/ridgeline-labs/minicrm/internal/app/metrics"
	"github.com/ridgeline-labs/minicrm/internal/app/storage/postgres"
	"github.com/ridgeline-labs/minicrm/internal/cache"
	"github.com/ridgeline-labs/minicrm/internal/config"
	"github.com/ridgeline-labs/minicrm/internal/middleware"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
		auditPath  = flag.String("audit-file", "", "Path to the JSONL audit sink (optional)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewDefault("server").WithError(err).Error("load config")
		os.Exit(1)
	}

	log := logger.New("server", cfg.LogLevel)

	var stores app.Stores
	if cfg.Database.URL != "" {
		db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			log.WithError(err).Error("connect postgres")
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := postgres.Migrate(db); err != nil {
				log.WithError(err).Error("migrate database")
				os.Exit(1)
			}
		}

		pg := postgres.New(db)
		stores = app.Stores{
			Users:         pg,
			Organizations: pg,
			Contacts:      pg,
			Deals:         pg,
			Tasks:         pg,
			Activities:    pg,
			Tx:            pg,
		}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; using in-memory storage")
	}

	var analyticsCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedis(context.Background(), cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.WithError(err).Error("connect redis")
			os.Exit(1)
		}
		defer redisCache.Close()
		analyticsCache = redisCache
		log.WithField("addr", cfg.Cache.RedisAddr).Info("using redis analytics cache")
	}

	application := app.New(stores, app.Options{
		AuthSecret:        cfg.Auth.Secret,
		AccessTokenTTL:    cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:   cfg.Auth.RefreshTokenTTL,
		AnalyticsCacheTTL: cfg.Analytics.CacheTTL,
		Cache:             analyticsCache,
	}, log)

	handler := httpapi.NewHandler(application, httpapi.Options{
		DefaultPageSize: cfg.Paging.DefaultPageSize,
		MaxPageSize:     cfg.Paging.MaxPageSize,
		CORSOrigins:     cfg.Server.CORSOrigins,
		AuditFilePath:   *auditPath,
	}, log)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMin, cfg.Server.RateLimitPerMin/6+1, log)
	root := metrics.InstrumentHandler(limiter.Handler(handler))

	server := &http.Server{
		Addr:    cfg.Server.ListenAddr(),
		Handler: root,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
