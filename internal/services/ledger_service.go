package services

import (
	"context"
	"errors"
	"fmt"

	"cofrinho/internal/amqp"
	"cofrinho/internal/core"
	"cofrinho/internal/log"
)

type (
	// LedgerStore is the persistence the service decorates.
	LedgerStore interface {
		Insert(ctx context.Context, userID int64, amount core.Money, category string) (core.Transaction, error)
		Delete(ctx context.Context, userID int64, shortID string) (bool, error)
		Sum(ctx context.Context, userID int64) (core.Money, error)
		Recent(ctx context.Context, userID int64, limit int) ([]core.Transaction, error)
	}

	// Publisher delivers ledger events to the mirror, either over AMQP or
	// through the in-process SyncProcessor.
	Publisher interface {
		Publish(ctx context.Context, ev *amqp.TransactionEvent) error
	}
)

// LedgerService writes to the store first and announces every change
// afterwards. A failed announcement never fails the ledger operation.
type LedgerService struct {
	store     LedgerStore
	publisher Publisher
	logger    *log.Logger
}

func NewLedgerService(store LedgerStore, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Default()
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// Insert records the entry and publishes a recorded event.
func (s *LedgerService) Insert(ctx context.Context, userID int64, amount core.Money, category string) (core.Transaction, error) {
	tx, err := s.store.Insert(ctx, userID, amount, category)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, amqp.NewRecordedEvent(tx))
	return tx, nil
}

// Delete removes the entry and, when something was removed, publishes a
// deleted event.
func (s *LedgerService) Delete(ctx context.Context, userID int64, shortID string) (bool, error) {
	deleted, err := s.store.Delete(ctx, userID, shortID)
	if err != nil || !deleted {
		return deleted, err
	}
	s.publish(ctx, amqp.NewDeletedEvent(userID, core.NormalizeShortID(shortID)))
	return true, nil
}

func (s *LedgerService) Sum(ctx context.Context, userID int64) (core.Money, error) {
	return s.store.Sum(ctx, userID)
}

func (s *LedgerService) Recent(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	return s.store.Recent(ctx, userID, limit)
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.TransactionEvent) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping event", log.FieldEventType, ev.Type)
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		errorType := log.ErrorTypeExternal
		if errors.Is(err, amqp.ErrCircuitOpen) {
			errorType = log.ErrorTypeCircuitOpen
		}
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, ev.Type,
			log.FieldShortID, ev.ShortID,
			log.FieldUserID, ev.UserID,
			log.FieldErrorType, errorType,
			"error", err)
	}
}

// Close closes the publisher when it owns a connection.
func (s *LedgerService) Close() error {
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("publisher: %w", err)
		}
	}
	return nil
}
