package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cofrinho/internal/core"
)

// EventType names a ledger change.
type EventType string

const (
	EventRecorded EventType = "transaction.recorded"
	EventDeleted  EventType = "transaction.deleted"
)

// TransactionEvent announces a ledger change to downstream consumers such as
// the spreadsheet mirror. Deleted events carry only the identifiers.
type TransactionEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	UserID      int64     `json:"user_id"`
	ShortID     string    `json:"short_id"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRecordedEvent describes a freshly inserted transaction.
func NewRecordedEvent(tx core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		ID:          uuid.NewString(),
		Type:        EventRecorded,
		UserID:      tx.UserID,
		ShortID:     tx.ShortID,
		AmountCents: tx.Amount.Cents,
		Category:    tx.Category,
		CreatedAt:   tx.CreatedAt,
		Timestamp:   time.Now(),
	}
}

// NewDeletedEvent describes the removal of a user's transaction.
func NewDeletedEvent(userID int64, shortID string) *TransactionEvent {
	return &TransactionEvent{
		ID:        uuid.NewString(),
		Type:      EventDeleted,
		UserID:    userID,
		ShortID:   shortID,
		Timestamp: time.Now(),
	}
}

// Transaction rebuilds the ledger entry carried by a recorded event.
func (e *TransactionEvent) Transaction() core.Transaction {
	return core.Transaction{
		ShortID:   e.ShortID,
		UserID:    e.UserID,
		Amount:    core.Money{Cents: e.AmountCents},
		Category:  e.Category,
		CreatedAt: e.CreatedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case EventRecorded, EventDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ShortID == "" {
		return nil, fmt.Errorf("event %s has no short id", e.ID)
	}
	return &e, nil
}
