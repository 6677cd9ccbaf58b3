package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertOrder stores a new order record.
func (r *PostgresRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	meta, err := toJSON(order.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO orders (order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, q,
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
	return scanOrder(row, "insert order")
}

// GetOrder retrieves an order by its external order id.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	const q = `
SELECT id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at
FROM orders
WHERE order_id = $1
LIMIT 1;
`
	return scanOrder(r.pool.QueryRow(ctx, q, orderID), "get order")
}

// GetOrderByProviderRef retrieves an order by the provider's payment reference.
func (r *PostgresRepository) GetOrderByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	const q = `
SELECT id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at
FROM orders
WHERE provider_ref = $1
LIMIT 1;
`
	return scanOrder(r.pool.QueryRow(ctx, q, providerRef), "get order by provider ref")
}

// MarkOrderPaid flips the order to paid and grants its credits in one
// transaction. The status='pending' guard is the compare-and-swap that keeps
// replayed webhooks and racing polls from double-crediting: only the first
// caller sees an affected row, everyone else gets won=false.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, providerRef string) (*Order, bool, error) {
	var order *Order
	won := false

	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		const update = `
UPDATE orders
SET status = 'paid', updated_at = NOW()
WHERE provider_ref = $1 AND status = 'pending'
RETURNING id, order_id, user_id, package_id, credits_owed, amount_due, status, provider, provider_ref, metadata, created_at, updated_at;
`
		updated, err := scanOrder(tx.QueryRow(ctx, update, providerRef), "mark order paid")
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		const grant = `
UPDATE users
SET credits = credits + $2, updated_at = NOW()
WHERE id = $1;
`
		ct, err := tx.Exec(ctx, grant, updated.UserID, updated.CreditsOwed)
		if err != nil {
			return fmt.Errorf("grant credits: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("grant credits: user not found: %s", updated.UserID)
		}

		order = updated
		won = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, won, nil
}

// MarkOrderFailed flips a pending order to failed. No credit change.
func (r *PostgresRepository) MarkOrderFailed(ctx context.Context, providerRef string) (bool, error) {
	const q = `
UPDATE orders
SET status = 'failed', updated_at = NOW()
WHERE provider_ref = $1 AND status = 'pending';
`
	ct, err := r.pool.Exec(ctx, q, providerRef)
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func scanOrder(row pgx.Row, verb string) (*Order, error) {
	var order Order
	var metaJSON []byte
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", verb, err)
	}
	order.Metadata = fromJSON(metaJSON)
	return &order, nil
}

func toJSON(val map[string]any) ([]byte, error) {
	if val == nil {
		return nil, nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func fromJSON(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"_raw": string(data)}
	}
	return m
}

func jsonParam(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
