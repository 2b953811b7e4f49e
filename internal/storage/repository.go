package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cofrinho/internal/core"
	"cofrinho/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries

	newShortID core.ShortIDGenerator
	attempts   int
	now        func() time.Time
	logger     *log.Logger
}

// Option customizes a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithShortIDGenerator replaces the random identifier source.
func WithShortIDGenerator(gen core.ShortIDGenerator) Option {
	return func(r *SQLiteRepository) { r.newShortID = gen }
}

// WithShortIDAttempts sets the bounded retry count for identifier collisions.
func WithShortIDAttempts(n int) Option {
	return func(r *SQLiteRepository) { r.attempts = n }
}

// WithLogger sets the logger; records carry the storage component.
func WithLogger(logger *log.Logger) Option {
	return func(r *SQLiteRepository) {
		if logger != nil {
			r.logger = logger.WithComponent(log.ComponentStorage)
		}
	}
}

// WithClock replaces time.Now for created_at and last_interaction stamps.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:         db,
		queries:    New(db),
		newShortID: core.NewShortID,
		attempts:   DefaultShortIDAttempts,
		now:        time.Now,
		logger:     log.Default().WithComponent(log.ComponentStorage),
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

// dsn enables foreign keys and a busy timeout on every pooled connection.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Upsert creates the user on first contact, otherwise refreshes the display
// name and last interaction. The address uniqueness constraint makes repeated
// and concurrent calls converge on a single row.
func (r *SQLiteRepository) Upsert(ctx context.Context, address, displayName string) (int64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, core.ErrEmptyAddress
	}
	id, err := r.queries.UpsertUser(ctx, UpsertUserParams{
		Address:         address,
		DisplayName:     core.NormalizeDisplayName(displayName),
		LastInteraction: r.now().UnixMilli(),
	})
	if err != nil {
		return 0, core.NewStoreError("upsert user", err)
	}
	return id, nil
}

// FindUserByAddress returns core.ErrNotFound for unknown addresses.
func (r *SQLiteRepository) FindUserByAddress(ctx context.Context, address string) (core.User, error) {
	u, err := r.queries.GetUserByAddress(ctx, strings.TrimSpace(address))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, core.NewStoreError("get user", err)
	}
	return toCoreUser(u), nil
}

// ListUsers returns every user, most recent interaction first.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.queries.ListUsers(ctx)
	if err != nil {
		return nil, core.NewStoreError("list users", err)
	}
	users := make([]core.User, len(rows))
	for i, u := range rows {
		users[i] = toCoreUser(u)
	}
	return users, nil
}

// Insert persists a transaction under a freshly generated short identifier,
// retrying on collision a bounded number of times.
func (r *SQLiteRepository) Insert(ctx context.Context, userID int64, amount core.Money, category string) (core.Transaction, error) {
	category = strings.TrimSpace(category)
	if err := (core.Transaction{Amount: amount, Category: category}).Validate(); err != nil {
		return core.Transaction{}, err
	}
	createdAt := r.now().UnixMilli()

	tx, err := InsertWithUniqueShortID(ctx, r.logger, r.newShortID, r.attempts, func(shortID string) (core.Transaction, error) {
		row, err := r.queries.InsertTransaction(ctx, InsertTransactionParams{
			ShortID:     shortID,
			UserID:      userID,
			AmountCents: amount.Cents,
			Category:    category,
			CreatedAt:   createdAt,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, core.ErrDuplicateShortID
		}
		if err != nil {
			return core.Transaction{}, core.NewStoreError("insert transaction", err)
		}
		return toCoreTransaction(row), nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	r.logger.InfoContext(ctx, "Transaction saved to SQLite",
		log.NewFields().
			WithUser(tx.UserID).
			WithTransaction(tx.ShortID, tx.Amount.Cents, tx.Category).
			WithOperation(log.OpCreate).ToSlice()...)

	return tx, nil
}

// Delete removes the transaction only when it belongs to userID. Zero matches
// is a normal outcome and reported as false.
func (r *SQLiteRepository) Delete(ctx context.Context, userID int64, shortID string) (bool, error) {
	n, err := r.queries.DeleteTransaction(ctx, core.NormalizeShortID(shortID), userID)
	if err != nil {
		return false, core.NewStoreError("delete transaction", err)
	}
	return n > 0, nil
}

// Get returns the user's transaction with the given short identifier.
func (r *SQLiteRepository) Get(ctx context.Context, userID int64, shortID string) (core.Transaction, error) {
	row, err := r.queries.GetTransactionByShortID(ctx, core.NormalizeShortID(shortID), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.NewStoreError("get transaction", err)
	}
	return toCoreTransaction(row), nil
}

// Sum returns the user's running total, zero when there are no rows. The
// total is exact below 2^53 cents and saturates at the int64 bound.
func (r *SQLiteRepository) Sum(ctx context.Context, userID int64) (core.Money, error) {
	total, err := r.queries.SumTransactions(ctx, userID)
	if err != nil {
		return core.Money{}, core.NewStoreError("sum transactions", err)
	}
	if total >= math.MaxInt64 {
		return core.Money{Cents: math.MaxInt64}, nil
	}
	return core.Money{Cents: int64(math.Round(total))}, nil
}

// Recent returns up to limit transactions, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, userID int64, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.queries.RecentTransactions(ctx, userID, int64(limit))
	if err != nil {
		return nil, core.NewStoreError("recent transactions", err)
	}
	txs := make([]core.Transaction, len(rows))
	for i, row := range rows {
		txs[i] = toCoreTransaction(row)
	}
	return txs, nil
}

// LogMessage appends to the conversation log.
func (r *SQLiteRepository) LogMessage(ctx context.Context, userID int64, direction core.Direction, body string) error {
	err := r.queries.InsertMessage(ctx, InsertMessageParams{
		UserID:    userID,
		Direction: string(direction),
		Body:      body,
		CreatedAt: r.now().UnixMilli(),
	})
	if err != nil {
		return core.NewStoreError("insert message", err)
	}
	return nil
}

// ListMessages returns the user's conversation log, oldest first.
func (r *SQLiteRepository) ListMessages(ctx context.Context, userID int64) ([]core.Message, error) {
	rows, err := r.queries.ListMessages(ctx, userID)
	if err != nil {
		return nil, core.NewStoreError("list messages", err)
	}
	msgs := make([]core.Message, len(rows))
	for i, m := range rows {
		msgs[i] = core.Message{
			ID:        m.ID,
			UserID:    m.UserID,
			Direction: core.Direction(m.Direction),
			Body:      m.Body,
			Timestamp: time.UnixMilli(m.CreatedAt),
		}
	}
	return msgs, nil
}

func toCoreUser(u User) core.User {
	return core.User{
		ID:              u.ID,
		Address:         u.Address,
		DisplayName:     u.DisplayName,
		LastInteraction: time.UnixMilli(u.LastInteraction),
	}
}

func toCoreTransaction(t Transaction) core.Transaction {
	return core.Transaction{
		ID:        t.ID,
		ShortID:   t.ShortID,
		UserID:    t.UserID,
		Amount:    core.Money{Cents: t.AmountCents},
		Category:  t.Category,
		CreatedAt: time.UnixMilli(t.CreatedAt),
	}
}
