// Command server runs the wellness backend HTTP API.
//
// Startup order:
//  1. Load .env (best effort) and the typed configuration
//  2. Configure zerolog (level, optional pretty console output)
//  3. Open SQLite and run migrations
//  4. Set up OpenTelemetry tracing (no-op when disabled)
//  5. Connect Redis for the score cache (optional)
//  6. Start the alert dispatch manager
//  7. Serve HTTP until SIGINT/SIGTERM, then drain gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solmere/go-wellness-backend/internal/alert"
	"github.com/solmere/go-wellness-backend/internal/cache"
	"github.com/solmere/go-wellness-backend/internal/config"
	httpapi "github.com/solmere/go-wellness-backend/internal/http"
	"github.com/solmere/go-wellness-backend/internal/notify"
	"github.com/solmere/go-wellness-backend/internal/observability"
	"github.com/solmere/go-wellness-backend/internal/repo"
	"github.com/solmere/go-wellness-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting wellness backend")

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Score cache is optional: no Redis address, no cache.
	var scores *cache.ScoreCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable; score cache disabled")
		} else {
			scores = cache.NewScoreCache(rdb, cfg.Redis.ScoreTTL, log.Logger)
			defer rdb.Close()
		}
	}

	channel := notify.NewWebhookChannel(cfg.Dispatch.WebhookEndpoint, cfg.Dispatch.AttemptTimeout)
	mgr := alert.NewManager(
		&repo.AlertStore{DB: db},
		&repo.ContactStore{DB: db},
		channel,
		alert.Config{
			MaxAttempts:    cfg.Dispatch.MaxAttempts,
			BaseDelay:      cfg.Dispatch.BaseDelay,
			MaxDelay:       cfg.Dispatch.MaxDelay,
			JitterFactor:   cfg.Dispatch.JitterFactor,
			AttemptTimeout: cfg.Dispatch.AttemptTimeout,
		},
		log.Logger,
	)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, mgr, scores, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("listening")

	// Block until shutdown is requested.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Stop dispatch workers after the HTTP surface is drained so in-flight
	// requests cannot spawn new ones.
	mgr.Close()

	if err := shutdownOTel(drainCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
