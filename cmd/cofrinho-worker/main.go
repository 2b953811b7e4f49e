package main

import (
	"context"
	"os"
	"time"

	"cofrinho/internal/amqp"
	"cofrinho/internal/cli"
	"cofrinho/internal/config"
	"cofrinho/internal/log"
	gsheet "cofrinho/internal/sheets/google"
	"cofrinho/internal/worker"
)

const (
	shutdownTimeout = 30 * time.Second
	consumeRetry    = 5 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting cofrinho-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	initCtx := context.Background()
	mirror, err := gsheet.New(initCtx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Location:        cfg.Location(),
		Logger:          logger,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	if err := mirror.EnsureHeader(initCtx); err != nil {
		// Not fatal; appends still work on a sheet without a header.
		logger.Warn("Failed to write sheet header", log.FieldError, err, log.FieldErrorType, log.ErrorTypeExternal)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err, log.FieldErrorType, log.ErrorTypeNetwork)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Warn("AMQP close error", log.FieldError, err)
		}
	})

	syncWorker := worker.NewSyncWorker(mirror, logger)

	for ctx.Err() == nil {
		err := client.Consume(ctx, syncWorker.HandleEvent)
		if ctx.Err() != nil {
			break
		}
		logger.Error("Message consumption stopped, retrying",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeNetwork,
			"retry_in", consumeRetry.String())
		select {
		case <-ctx.Done():
		case <-time.After(consumeRetry):
		}
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped", log.FieldOperation, log.OpShutdown)
}
