package storage

import (
	"context"
	"errors"

	"cofrinho/internal/core"
	"cofrinho/internal/log"
)

// DefaultShortIDAttempts bounds how many identifiers an insert tries.
const DefaultShortIDAttempts = 5

// InsertWithUniqueShortID draws identifiers from gen and calls try until one
// is accepted. try must perform a single atomic conditional insert and return
// core.ErrDuplicateShortID when the identifier is already taken. No lock is
// held between attempts.
func InsertWithUniqueShortID(ctx context.Context, logger *log.Logger, gen core.ShortIDGenerator, attempts int, try func(shortID string) (core.Transaction, error)) (core.Transaction, error) {
	if logger == nil {
		logger = log.Default().WithComponent(log.ComponentStorage)
	}
	if gen == nil {
		gen = core.NewShortID
	}
	if attempts < 1 {
		attempts = DefaultShortIDAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.Transaction{}, err
		}
		shortID := gen()
		tx, err := try(shortID)
		if errors.Is(err, core.ErrDuplicateShortID) {
			logger.WarnContext(ctx, "Short id collision, retrying",
				log.FieldShortID, shortID,
				"attempt", attempt,
				"max_attempts", attempts)
			continue
		}
		if err != nil {
			return core.Transaction{}, err
		}
		return tx, nil
	}
	return core.Transaction{}, core.NewStoreError("insert transaction", core.ErrShortIDExhausted)
}
