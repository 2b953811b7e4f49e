package backend

import (
	"context"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/dialogue"
	"cofrinho/internal/services"
	"cofrinho/internal/sheets"
	"cofrinho/internal/storage"
	"cofrinho/internal/storage/memory"
)

// Store is everything the server needs from persistence: the user
// directory, the ledger and the message log, plus the dashboard reads.
type Store interface {
	dialogue.Directory
	dialogue.Ledger
	dialogue.MessageLog

	FindUserByAddress(ctx context.Context, address string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
	Get(ctx context.Context, userID int64, shortID string) (core.Transaction, error)
	ListMessages(ctx context.Context, userID int64) ([]core.Message, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*storage.SQLiteRepository)(nil)
	_ Store = (*memory.Store)(nil)
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Store Store

	// Ledger publishes change events when a publisher is configured and
	// otherwise delegates straight to Store.
	Ledger *services.LedgerService

	// Processor is set when ledger events are mirrored in-process.
	Processor *services.SyncProcessor

	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	ShortIDAttempts int

	// Ledger events over AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Spreadsheet mirror, used in-process when AMQP is not configured
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	Location                 *time.Location

	// Mirror overrides the Google client, mainly for tests.
	Mirror sheets.LedgerMirror
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
