package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// CreateUser inserts a new user with zero credits.
func (r *PostgresRepository) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	const q = `
INSERT INTO users (phone, name, password_hash)
VALUES ($1, $2, $3)
RETURNING id, phone, name, password_hash, credits, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q, user.Phone, user.Name, user.PasswordHash)
	var u User
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

// GetUserByPhone returns the user registered under the phone number.
func (r *PostgresRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `
SELECT id, phone, name, password_hash, credits, created_at, updated_at
FROM users
WHERE phone = $1
LIMIT 1;
`
	return r.scanUser(r.pool.QueryRow(ctx, q, phone), "get user by phone")
}

// GetUserByID returns user by internal identifier.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, phone, name, password_hash, credits, created_at, updated_at
FROM users
WHERE id = $1
LIMIT 1;
`
	return r.scanUser(r.pool.QueryRow(ctx, q, id), "get user by id")
}

// InsertSession stores a bearer session token for the user.
func (r *PostgresRepository) InsertSession(ctx context.Context, token, userID string) error {
	const q = `INSERT INTO sessions (token, user_id) VALUES ($1, $2);`
	if _, err := r.pool.Exec(ctx, q, token, userID); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetUserByToken resolves a session token to its user.
func (r *PostgresRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	const q = `
SELECT u.id, u.phone, u.name, u.password_hash, u.credits, u.created_at, u.updated_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token = $1
LIMIT 1;
`
	return r.scanUser(r.pool.QueryRow(ctx, q, token), "get user by token")
}

// ConsumeCredit atomically debits one credit. The conditional update makes
// concurrent consumption safe: the balance can never go negative.
func (r *PostgresRepository) ConsumeCredit(ctx context.Context, userID string) (int64, error) {
	const q = `
UPDATE users
SET credits = credits - 1, updated_at = NOW()
WHERE id = $1 AND credits >= 1
RETURNING credits;
`
	var remaining int64
	err := r.pool.QueryRow(ctx, q, userID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	// Zero rows: either the user is unknown or the balance is empty.
	if _, lookupErr := r.GetUserByID(ctx, userID); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrInsufficientCredits
}

func (r *PostgresRepository) scanUser(row pgx.Row, verb string) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	return &u, nil
}
