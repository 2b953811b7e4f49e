package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// Row models. Timestamps are unix milliseconds.
type (
	User struct {
		ID              int64
		Address         string
		DisplayName     string
		LastInteraction int64
	}

	Transaction struct {
		ID          int64
		ShortID     string
		UserID      int64
		AmountCents int64
		Category    string
		CreatedAt   int64
	}

	Message struct {
		ID        int64
		UserID    int64
		Direction string
		Body      string
		CreatedAt int64
	}
)

const upsertUser = `-- name: UpsertUser :one
INSERT INTO users (address, display_name, last_interaction)
VALUES (?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
    display_name     = excluded.display_name,
    last_interaction = MAX(users.last_interaction, excluded.last_interaction)
RETURNING id
`

type UpsertUserParams struct {
	Address         string
	DisplayName     string
	LastInteraction int64
}

func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertUser, arg.Address, arg.DisplayName, arg.LastInteraction)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getUserByAddress = `-- name: GetUserByAddress :one
SELECT id, address, display_name, last_interaction FROM users WHERE address = ?
`

func (q *Queries) GetUserByAddress(ctx context.Context, address string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByAddress, address)
	var i User
	err := row.Scan(&i.ID, &i.Address, &i.DisplayName, &i.LastInteraction)
	return i, err
}

const listUsers = `-- name: ListUsers :many
SELECT id, address, display_name, last_interaction FROM users
ORDER BY last_interaction DESC, id DESC
`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		var i User
		if err := rows.Scan(&i.ID, &i.Address, &i.DisplayName, &i.LastInteraction); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// insertTransaction is a conditional insert: a short_id collision yields no
// row instead of a constraint error, so callers see sql.ErrNoRows.
const insertTransaction = `-- name: InsertTransaction :one
INSERT INTO transactions (short_id, user_id, amount_cents, category, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(short_id) DO NOTHING
RETURNING id, short_id, user_id, amount_cents, category, created_at
`

type InsertTransactionParams struct {
	ShortID     string
	UserID      int64
	AmountCents int64
	Category    string
	CreatedAt   int64
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, insertTransaction,
		arg.ShortID,
		arg.UserID,
		arg.AmountCents,
		arg.Category,
		arg.CreatedAt,
	)
	var i Transaction
	err := row.Scan(&i.ID, &i.ShortID, &i.UserID, &i.AmountCents, &i.Category, &i.CreatedAt)
	return i, err
}

const deleteTransaction = `-- name: DeleteTransaction :execrows
DELETE FROM transactions WHERE short_id = ? AND user_id = ?
`

func (q *Queries) DeleteTransaction(ctx context.Context, shortID string, userID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, shortID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// sumTransactions uses TOTAL, which never raises on integer overflow and is
// 0.0 for a user without rows.
const sumTransactions = `-- name: SumTransactions :one
SELECT TOTAL(amount_cents) FROM transactions WHERE user_id = ?
`

func (q *Queries) SumTransactions(ctx context.Context, userID int64) (float64, error) {
	row := q.db.QueryRowContext(ctx, sumTransactions, userID)
	var total float64
	err := row.Scan(&total)
	return total, err
}

const recentTransactions = `-- name: RecentTransactions :many
SELECT id, short_id, user_id, amount_cents, category, created_at FROM transactions
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) RecentTransactions(ctx context.Context, userID int64, limit int64) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, recentTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(&i.ID, &i.ShortID, &i.UserID, &i.AmountCents, &i.Category, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransactionByShortID = `-- name: GetTransactionByShortID :one
SELECT id, short_id, user_id, amount_cents, category, created_at FROM transactions
WHERE short_id = ? AND user_id = ?
`

func (q *Queries) GetTransactionByShortID(ctx context.Context, shortID string, userID int64) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransactionByShortID, shortID, userID)
	var i Transaction
	err := row.Scan(&i.ID, &i.ShortID, &i.UserID, &i.AmountCents, &i.Category, &i.CreatedAt)
	return i, err
}

const insertMessage = `-- name: InsertMessage :exec
INSERT INTO messages (user_id, direction, body, created_at) VALUES (?, ?, ?, ?)
`

type InsertMessageParams struct {
	UserID    int64
	Direction string
	Body      string
	CreatedAt int64
}

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.ExecContext(ctx, insertMessage, arg.UserID, arg.Direction, arg.Body, arg.CreatedAt)
	return err
}

const listMessages = `-- name: ListMessages :many
SELECT id, user_id, direction, body, created_at FROM messages
WHERE user_id = ?
ORDER BY created_at ASC, id ASC
`

func (q *Queries) ListMessages(ctx context.Context, userID int64) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, listMessages, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		var i Message
		if err := rows.Scan(&i.ID, &i.UserID, &i.Direction, &i.Body, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
