package worker

import (
	"context"
	"fmt"

	"cofrinho/internal/amqp"
	"cofrinho/internal/log"
	"cofrinho/internal/sheets"
)

// SyncWorker applies ledger events to the spreadsheet mirror.
type SyncWorker struct {
	mirror sheets.LedgerMirror
	logger *log.Logger
}

func NewSyncWorker(mirror sheets.LedgerMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncWorker{
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single ledger event. Both event kinds are
// idempotent on the mirror side, so redelivery is safe.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.TransactionEvent) error {
	switch ev.Type {
	case amqp.EventRecorded:
		return w.handleRecorded(ctx, ev)
	case amqp.EventDeleted:
		return w.handleDeleted(ctx, ev)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (w *SyncWorker) handleRecorded(ctx context.Context, ev *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing recorded event",
		"event_id", ev.ID,
		log.FieldShortID, ev.ShortID,
		log.FieldUserID, ev.UserID)

	tx := ev.Transaction()
	ref, err := w.mirror.AppendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	fields := log.NewFields().
		WithTransaction(tx.ShortID, tx.Amount.Cents, tx.Category).
		WithOperation(log.OpSync)
	fields[log.FieldSheetsRef] = ref
	w.logger.InfoContext(ctx, "Successfully mirrored transaction", fields.ToSlice()...)
	return nil
}

func (w *SyncWorker) handleDeleted(ctx context.Context, ev *amqp.TransactionEvent) error {
	w.logger.InfoContext(ctx, "Processing delete event",
		"event_id", ev.ID,
		log.FieldShortID, ev.ShortID,
		log.FieldUserID, ev.UserID)

	if err := w.mirror.DeleteTransaction(ctx, ev.ShortID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to delete mirrored transaction",
			log.FieldShortID, ev.ShortID,
			log.FieldError, err,
			log.FieldOperation, log.OpSync,
			"timestamp", ev.Timestamp)
		return fmt.Errorf("delete from sheets: %w", err)
	}

	w.logger.InfoContext(ctx, "Successfully deleted mirrored transaction",
		log.FieldShortID, ev.ShortID,
		log.FieldOperation, log.OpSync)
	return nil
}
