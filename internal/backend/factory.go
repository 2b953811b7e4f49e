package backend

import (
	"context"
	"errors"
	"fmt"

	"cofrinho/internal/amqp"
	"cofrinho/internal/log"
	"cofrinho/internal/services"
	"cofrinho/internal/sheets"
	gsheet "cofrinho/internal/sheets/google"
	"cofrinho/internal/storage"
	"cofrinho/internal/storage/memory"
	"cofrinho/internal/worker"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend builds the store, then picks how ledger changes reach the
// spreadsheet: over AMQP when a broker is configured, in-process when only a
// sheet is configured, or not at all.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store Store
	var err error
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteStore(config)
	case MemoryBackend:
		store = f.createMemoryStore(config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	publisher, processor, err := f.createPublisher(ctx, config)
	if err != nil {
		store.Close()
		return nil, err
	}

	ledger := services.NewLedgerService(store, publisher, f.logger)

	return &BackendResult{
		Store:     store,
		Ledger:    ledger,
		Processor: processor,
		Cleanup: func() error {
			return errors.Join(ledger.Close(), store.Close())
		},
	}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (Store, error) {
	opts := []storage.Option{storage.WithLogger(f.logger)}
	if config.ShortIDAttempts > 0 {
		opts = append(opts, storage.WithShortIDAttempts(config.ShortIDAttempts))
	}
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryStore(config Config) Store {
	opts := []memory.Option{memory.WithLogger(f.logger)}
	if config.ShortIDAttempts > 0 {
		opts = append(opts, memory.WithShortIDAttempts(config.ShortIDAttempts))
	}
	f.logger.Info("Initialized memory backend")
	return memory.New(opts...)
}

// createPublisher returns a nil Publisher when no mirror is configured. A
// broker that cannot be reached is logged and skipped; the ledger keeps
// working without events.
func (f *DefaultFactory) createPublisher(ctx context.Context, config Config) (services.Publisher, *services.SyncProcessor, error) {
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", "error", err)
			return nil, nil, nil
		}
		f.logger.Info("Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, nil, nil
	}

	mirror, err := f.createMirror(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	if mirror == nil {
		return nil, nil, nil
	}
	w := worker.NewSyncWorker(mirror, f.logger)
	processor := services.NewSyncProcessor(w.HandleEvent, services.DefaultSyncProcessorConfig(), f.logger)
	f.logger.Info("Mirroring ledger in-process")
	return processor, processor, nil
}

func (f *DefaultFactory) createMirror(ctx context.Context, config Config) (sheets.LedgerMirror, error) {
	if config.Mirror != nil {
		return config.Mirror, nil
	}
	if config.GoogleSpreadsheetID == "" {
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		Location:        config.Location,
		Logger:          f.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		f.logger.Warn("Could not write sheet header", "error", err)
	}
	return client, nil
}
