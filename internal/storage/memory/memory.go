// Package memory is an in-process backend for the user directory, the ledger
// and the message log. It is used for demos and tests.
//
// There is no store-wide lock: users are kept in a sync.Map keyed by address,
// each user's rows sit behind that user's own mutex, and short identifiers are
// claimed through a global sync.Map with LoadOrStore, which is the atomic
// conditional insert the collision retry relies on.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/log"
	"cofrinho/internal/storage"
)

type Store struct {
	byAddress sync.Map // address -> *userEntry
	byID      sync.Map // user id -> *userEntry
	shortIDs  sync.Map // short id -> user id

	nextUserID atomic.Int64
	nextTxID   atomic.Int64
	nextMsgID  atomic.Int64

	newShortID core.ShortIDGenerator
	attempts   int
	now        func() time.Time
	logger     *log.Logger
}

type userEntry struct {
	mu       sync.Mutex
	user     core.User
	txs      []core.Transaction // insertion order
	messages []core.Message
}

// Option customizes a Store.
type Option func(*Store)

func WithShortIDGenerator(gen core.ShortIDGenerator) Option {
	return func(s *Store) { s.newShortID = gen }
}

func WithShortIDAttempts(n int) Option {
	return func(s *Store) { s.attempts = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithComponent(log.ComponentStorage)
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		newShortID: core.NewShortID,
		attempts:   storage.DefaultShortIDAttempts,
		now:        time.Now,
		logger:     log.Default().WithComponent(log.ComponentStorage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Upsert creates the user on first contact, otherwise refreshes name and
// last interaction. Concurrent first contacts converge through LoadOrStore.
func (s *Store) Upsert(_ context.Context, address, displayName string) (int64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, core.ErrEmptyAddress
	}
	name := core.NormalizeDisplayName(displayName)
	now := s.now()

	e, ok := s.loadUser(address)
	if !ok {
		// Published locked so a racing caller never observes a zero id.
		fresh := &userEntry{user: core.User{Address: address}}
		fresh.mu.Lock()
		actual, loaded := s.byAddress.LoadOrStore(address, fresh)
		if !loaded {
			fresh.user.ID = s.nextUserID.Add(1)
			fresh.user.DisplayName = name
			fresh.user.LastInteraction = now
			s.byID.Store(fresh.user.ID, fresh)
			fresh.mu.Unlock()
			return fresh.user.ID, nil
		}
		fresh.mu.Unlock()
		e = actual.(*userEntry)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.user.DisplayName = name
	if now.After(e.user.LastInteraction) {
		e.user.LastInteraction = now
	}
	return e.user.ID, nil
}

func (s *Store) loadUser(address string) (*userEntry, bool) {
	v, ok := s.byAddress.Load(address)
	if !ok {
		return nil, false
	}
	return v.(*userEntry), true
}

func (s *Store) entry(userID int64) (*userEntry, bool) {
	v, ok := s.byID.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*userEntry), true
}

func (s *Store) FindUserByAddress(_ context.Context, address string) (core.User, error) {
	e, ok := s.loadUser(strings.TrimSpace(address))
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user, nil
}

// ListUsers returns every user, most recent interaction first.
func (s *Store) ListUsers(_ context.Context) ([]core.User, error) {
	var users []core.User
	s.byID.Range(func(_, v any) bool {
		e := v.(*userEntry)
		e.mu.Lock()
		users = append(users, e.user)
		e.mu.Unlock()
		return true
	})
	slices.SortFunc(users, func(a, b core.User) int {
		if c := b.LastInteraction.Compare(a.LastInteraction); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return users, nil
}

// Insert claims a short identifier and appends the transaction to the
// owner's ledger. The claim is retried on collision a bounded number of times.
func (s *Store) Insert(ctx context.Context, userID int64, amount core.Money, category string) (core.Transaction, error) {
	category = strings.TrimSpace(category)
	if err := (core.Transaction{Amount: amount, Category: category}).Validate(); err != nil {
		return core.Transaction{}, err
	}
	e, ok := s.entry(userID)
	if !ok {
		return core.Transaction{}, core.NewStoreError("insert transaction", fmt.Errorf("unknown user %d", userID))
	}
	createdAt := s.now()

	return storage.InsertWithUniqueShortID(ctx, s.logger, s.newShortID, s.attempts, func(shortID string) (core.Transaction, error) {
		if _, taken := s.shortIDs.LoadOrStore(shortID, userID); taken {
			return core.Transaction{}, core.ErrDuplicateShortID
		}
		tx := core.Transaction{
			ID:        s.nextTxID.Add(1),
			ShortID:   shortID,
			UserID:    userID,
			Amount:    amount,
			Category:  category,
			CreatedAt: createdAt,
		}
		e.mu.Lock()
		e.txs = append(e.txs, tx)
		e.mu.Unlock()
		return tx, nil
	})
}

// Delete removes the transaction only when userID owns it.
func (s *Store) Delete(_ context.Context, userID int64, shortID string) (bool, error) {
	shortID = core.NormalizeShortID(shortID)
	e, ok := s.entry(userID)
	if !ok {
		return false, nil
	}
	e.mu.Lock()
	idx := slices.IndexFunc(e.txs, func(t core.Transaction) bool { return t.ShortID == shortID })
	if idx < 0 {
		e.mu.Unlock()
		return false, nil
	}
	e.txs = slices.Delete(e.txs, idx, idx+1)
	e.mu.Unlock()

	s.shortIDs.Delete(shortID)
	return true, nil
}

func (s *Store) Get(_ context.Context, userID int64, shortID string) (core.Transaction, error) {
	shortID = core.NormalizeShortID(shortID)
	e, ok := s.entry(userID)
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.txs {
		if t.ShortID == shortID {
			return t, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) Sum(_ context.Context, userID int64) (core.Money, error) {
	var total core.Money
	e, ok := s.entry(userID)
	if !ok {
		return total, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.txs {
		total = total.Add(t.Amount)
	}
	return total, nil
}

// Recent returns up to limit transactions, newest first with ties broken by
// descending id.
func (s *Store) Recent(_ context.Context, userID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	e, ok := s.entry(userID)
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	txs := slices.Clone(e.txs)
	e.mu.Unlock()

	slices.SortFunc(txs, func(a, b core.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) LogMessage(_ context.Context, userID int64, direction core.Direction, body string) error {
	e, ok := s.entry(userID)
	if !ok {
		return core.NewStoreError("insert message", fmt.Errorf("unknown user %d", userID))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, core.Message{
		ID:        s.nextMsgID.Add(1),
		UserID:    userID,
		Direction: direction,
		Body:      body,
		Timestamp: s.now(),
	})
	return nil
}

// ListMessages returns the user's conversation log, oldest first.
func (s *Store) ListMessages(_ context.Context, userID int64) ([]core.Message, error) {
	e, ok := s.entry(userID)
	if !ok {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.messages), nil
}
