package repo

import (
	"context"
	"io/fs"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Users
	CreateUser(ctx context.Context, user NewUser) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)

	// Sessions
	InsertSession(ctx context.Context, token, userID string) error
	GetUserByToken(ctx context.Context, token string) (*User, error)

	// Orders
	InsertOrder(ctx context.Context, order Order) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrderByProviderRef(ctx context.Context, providerRef string) (*Order, error)

	// MarkOrderPaid transitions the order to paid and grants its credits in a
	// single atomic step. The compare-and-swap on status='pending' guarantees
	// the grant is applied at most once: won is false when the order was
	// already terminal (replayed webhook, losing racer) and on unknown refs.
	MarkOrderPaid(ctx context.Context, providerRef string) (order *Order, won bool, err error)

	// MarkOrderFailed transitions the order to failed. No credit change.
	MarkOrderFailed(ctx context.Context, providerRef string) (won bool, err error)

	// ConsumeCredit atomically debits one credit and returns the new balance.
	// Returns ErrInsufficientCredits without mutation when the balance is zero.
	ConsumeCredit(ctx context.Context, userID string) (remaining int64, err error)
}
