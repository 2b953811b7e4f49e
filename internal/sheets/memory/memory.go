// Package memory is an in-process ledger mirror used when no spreadsheet is
// configured, and in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"cofrinho/internal/core"
	ports "cofrinho/internal/sheets"
)

var _ ports.LedgerMirror = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	rows []core.Transaction
}

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the entry and returns a synthetic row reference.
// A short id that is already mirrored is not appended twice, so redelivered
// events are harmless.
func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(tx.ShortID); i >= 0 {
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, tx)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

func (s *Store) DeleteTransaction(_ context.Context, shortID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(shortID); i >= 0 {
		s.rows = slices.Delete(s.rows, i, i+1)
	}
	return nil
}

// Rows returns a copy of the mirrored entries in append order.
func (s *Store) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows)
}

func (s *Store) indexOf(shortID string) int {
	return slices.IndexFunc(s.rows, func(t core.Transaction) bool { return t.ShortID == shortID })
}
