package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Received Direction = "received"
	Sent     Direction = "sent"
)

// UnknownDisplayName is stored when the channel does not report a profile name.
const UnknownDisplayName = "Desconhecido"

// MaxAmountCents caps a single entry at R$ 1.000.000.000,00 so per-user
// totals stay far from int64 overflow.
const MaxAmountCents int64 = 100_000_000_000

// MaxCategoryLength bounds the free-text description of a transaction.
const MaxCategoryLength = 200

type (
	Direction string

	Money struct {
		Cents int64
	}

	// User is identified by a stable channel address (a phone number for WhatsApp).
	User struct {
		ID              int64
		Address         string
		DisplayName     string
		LastInteraction time.Time
	}

	Transaction struct {
		ID        int64
		ShortID   string
		UserID    int64
		Amount    Money
		Category  string
		CreatedAt time.Time
	}

	// Message is one row of the per-user conversation log.
	Message struct {
		ID        int64
		UserID    int64
		Direction Direction
		Body      string
		Timestamp time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyAddress     = errors.New("empty channel address")
)

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxAmountCents {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants a transaction must satisfy before insert.
func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Category)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Category) > MaxCategoryLength {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// NormalizeDisplayName trims the name and falls back to UnknownDisplayName.
func NormalizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return UnknownDisplayName
	}
	return name
}
