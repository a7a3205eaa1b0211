package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/courier-dispatch/internal/config"
	"github.com/example/courier-dispatch/internal/dispatch"
	httpapi "github.com/example/courier-dispatch/internal/http"
	"github.com/example/courier-dispatch/internal/ingest"
	"github.com/example/courier-dispatch/internal/lifecycle"
	"github.com/example/courier-dispatch/internal/location"
	"github.com/example/courier-dispatch/internal/logging"
	"github.com/example/courier-dispatch/internal/payments"
	"github.com/example/courier-dispatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("bad configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	var jobStore storage.JobStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		jobStore = ps
	} else {
		logger.Warn("PG_DSN unset, using in-memory job store")
		jobStore = storage.NewMemoryStore()
	}

	var locStore location.Store
	if cfg.RedisAddr != "" {
		rs := location.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer rs.Close()
		locStore = rs
	} else {
		logger.Warn("REDIS_ADDR unset, using in-memory location store")
		locStore = location.NewMemoryStore()
	}

	registry := dispatch.NewRegistry(logger)
	announcer := &dispatch.Announcer{Registry: registry, Logger: logger}
	if cfg.FCMEndpoint != "" {
		announcer.Push = dispatch.NewFCMPush(cfg.FCMEndpoint, cfg.FCMKey, cfg.FCMTopic)
	}
	if cfg.WebhookURL != "" {
		announcer.Webhook = dispatch.NewWebhook(cfg.WebhookURL)
	}

	var pay lifecycle.FeePayments
	if cfg.StripeAPIKey != "" {
		pay = payments.NewStripeClient(cfg.StripeAPIKey)
	}
	jobs := lifecycle.NewService(jobStore, announcer, pay, cfg.FeeAmount, cfg.FeeCurrency, logger)

	var producer location.Producer
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		producer = kp
	}
	relay := location.NewRelay(locStore, registry, producer, logger)

	api := httpapi.NewServer(jobs, relay, registry, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("courier-dispatch listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
	logger.Info("bye")
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_jobs.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
