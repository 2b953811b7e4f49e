package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"cofrinho/internal/backend"
	"cofrinho/internal/cache"
	"cofrinho/internal/cli"
	"cofrinho/internal/config"
	"cofrinho/internal/dialogue"
	apphttp "cofrinho/internal/http"
	"cofrinho/internal/log"
	"cofrinho/internal/reply"
	"cofrinho/internal/whatsapp"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	logger.Info("Starting cofrinho",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Location().String(),
		"mirror", cfg.MirrorEnabled())

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldError, err,
			log.FieldOperation, log.OpStartup,
			"backend", cfg.DataBackend)
		os.Exit(1)
	}

	// The processor outlives the signal context so Stop can drain it.
	if result.Processor != nil {
		if err := result.Processor.Start(context.Background()); err != nil {
			logger.Error("Failed to start sync processor", log.FieldError, err)
			os.Exit(1)
		}
	}

	sender, err := whatsapp.NewClient(whatsapp.Config{
		APIURL:        cfg.WhatsAppAPIURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Token:         cfg.WhatsAppToken,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("Failed to initialize WhatsApp client", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	composer := reply.NewComposer(cfg.Location(), cfg.StatementLimit)
	orchestrator := dialogue.New(result.Store, result.Ledger, result.Store, sender, composer, logger)

	dedup := cache.NewDeduplicator(cfg.DedupSize, cfg.DedupTTL)
	caches := cache.NewManager(logger)
	caches.Register(dedup)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		VerifyToken:        cfg.WebhookVerifyToken,
		AppSecret:          cfg.WhatsAppAppSecret,
		Concurrency:        cfg.WebhookConcurrency,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, result.Store, orchestrator, dedup, logger)

	cleanup := func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
		caches.Stop()
		if result.Processor != nil {
			if err := result.Processor.Stop(ctx); err != nil {
				logger.Warn("Sync processor did not drain", log.FieldError, err)
			}
			stats := result.Processor.Stats()
			logger.Info("Sync processor stats",
				"processed", stats.Processed,
				"failed", stats.Failed,
				"pending", stats.Pending)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
		}
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, cleanup)
	caches.StartCleanup(ctx, cleanupInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		cleanup(shutdownCtx)
		cancel()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
