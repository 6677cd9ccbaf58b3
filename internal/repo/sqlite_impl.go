package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// -- Users --

func (r *SQLiteRepository) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	// SQLite does not generate UUIDs; ids are produced in Go.
	id := randomUUID()
	const q = `
INSERT INTO users (id, phone, name, password_hash)
VALUES (?, ?, ?, ?)
RETURNING id, phone, name, password_hash, credits, created_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q, id, user.Phone, user.Name, user.PasswordHash)
	var u User
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrPhoneTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (r *SQLiteRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `
SELECT id, phone, name, password_hash, credits, created_at, updated_at
FROM users
WHERE phone = ?
LIMIT 1;
`
	return r.scanUser(r.db.QueryRowContext(ctx, q, phone), "get user by phone")
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, phone, name, password_hash, credits, created_at, updated_at
FROM users
WHERE id = ?
LIMIT 1;
`
	return r.scanUser(r.db.QueryRowContext(ctx, q, id), "get user by id")
}

// -- Sessions --

func (r *SQLiteRepository) InsertSession(ctx context.Context, token, userID string) error {
	const q = `INSERT INTO sessions (token, user_id) VALUES (?, ?);`
	if _, err := r.db.ExecContext(ctx, q, token, userID); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	const q = `
SELECT u.id, u.phone, u.name, u.password_hash, u.credits, u.created_at, u.updated_at
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token = ?
LIMIT 1;
`
	return r.scanUser(r.db.QueryRowContext(ctx, q, token), "get user by token")
}

// -- Orders --

func (r *SQLiteRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	meta, err := toJSON(order.Metadata)
	if err != nil {
		return nil, err
	}
	id := randomUUID()
	const q = `
INSERT INTO orders (id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at;
`
	row := r.db.QueryRowContext(ctx, q,
		id,
		order.OrderID,
		order.UserID,
		order.PackageID,
		order.CreditsOwed,
		order.AmountDue,
		order.Status,
		order.Provider,
		order.ProviderRef,
		jsonParam(meta),
	)
	return r.scanOrder(row, "insert order")
}

func (r *SQLiteRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	const q = `
SELECT id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at
FROM orders
WHERE order_id = ?
LIMIT 1;
`
	return r.scanOrder(r.db.QueryRowContext(ctx, q, orderID), "get order")
}

func (r *SQLiteRepository) GetOrderByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	const q = `
SELECT id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at
FROM orders
WHERE provider_ref = ?
LIMIT 1;
`
	return r.scanOrder(r.db.QueryRowContext(ctx, q, providerRef), "get order by provider ref")
}

func (r *SQLiteRepository) MarkOrderPaid(ctx context.Context, providerRef string) (*Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE orders
SET status = 'paid', updated_at = CURRENT_TIMESTAMP
WHERE provider_ref = ? AND status = 'pending'
RETURNING id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at;
`
	order, err := r.scanOrder(tx.QueryRowContext(ctx, update, providerRef), "mark order paid")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	const grant = `
UPDATE users
SET credits = credits + ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`
	res, err := tx.ExecContext(ctx, grant, order.CreditsOwed, order.UserID)
	if err != nil {
		return nil, false, fmt.Errorf("grant credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("grant credits rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, fmt.Errorf("grant credits: user not found: %s", order.UserID)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit mark order paid: %w", err)
	}
	return order, true, nil
}

func (r *SQLiteRepository) MarkOrderFailed(ctx context.Context, providerRef string) (bool, error) {
	const q = `
UPDATE orders
SET status = 'failed', updated_at = CURRENT_TIMESTAMP
WHERE provider_ref = ? AND status = 'pending';
`
	res, err := r.db.ExecContext(ctx, q, providerRef)
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order failed rows affected: %w", err)
	}
	return affected > 0, nil
}

// -- Credits --

func (r *SQLiteRepository) ConsumeCredit(ctx context.Context, userID string) (int64, error) {
	const q = `
UPDATE users
SET credits = credits - 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND credits >= 1
RETURNING credits;
`
	var remaining int64
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	if _, lookupErr := r.GetUserByID(ctx, userID); lookupErr != nil {
		return 0, lookupErr
	}
	return 0, ErrInsufficientCredits
}

// -- Scan helpers --

func (r *SQLiteRepository) scanUser(row *sql.Row, verb string) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Phone, &u.Name, &u.PasswordHash, &u.Credits, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	return &u, nil
}

func (r *SQLiteRepository) scanOrder(row *sql.Row, verb string) (*Order, error) {
	var order Order
	var metaJSON sql.NullString
	if err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.UserID,
		&order.PackageID,
		&order.CreditsOwed,
		&order.AmountDue,
		&order.Status,
		&order.Provider,
		&order.ProviderRef,
		&metaJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	if metaJSON.Valid {
		order.Metadata = fromJSON([]byte(metaJSON.String))
	}
	return &order, nil
}

func randomUUID() string {
	return uuid.NewString()
}
