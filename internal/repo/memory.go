package repo

import (
	"context"
	"io/fs"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded in-process store. It backs tests and
// local development; the locking gives it the same single-writer-per-row
// semantics as the SQL implementations.
type MemoryRepository struct {
	mu sync.Mutex

	usersByID    map[string]*User
	usersByPhone map[string]string
	sessions     map[string]string
	orders       map[string]*Order
	ordersByRef  map[string]string
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		usersByID:    make(map[string]*User),
		usersByPhone: make(map[string]string),
		sessions:     make(map[string]string),
		orders:       make(map[string]*Order),
		ordersByRef:  make(map[string]string),
	}
}

// Close is a no-op for the in-memory store.
func (r *MemoryRepository) Close() {}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// RunMigrations is a no-op for the in-memory store.
func (r *MemoryRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error { return nil }

func (r *MemoryRepository) CreateUser(ctx context.Context, user NewUser) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.usersByPhone[user.Phone]; taken {
		return nil, ErrPhoneTaken
	}
	now := time.Now()
	u := &User{
		ID:           randomUUID(),
		Phone:        user.Phone,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		Credits:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.usersByID[u.ID] = u
	r.usersByPhone[u.Phone] = u.ID
	out := *u
	return &out, nil
}

func (r *MemoryRepository) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.usersByPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.usersByID[id]
	return &out, nil
}

func (r *MemoryRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryRepository) InsertSession(ctx context.Context, token, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = userID
	return nil
}

func (r *MemoryRepository) GetUserByToken(ctx context.Context, token string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := r.usersByID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	order.ID = randomUUID()
	order.CreatedAt = now
	order.UpdatedAt = now
	stored := order
	r.orders[order.OrderID] = &stored
	r.ordersByRef[order.ProviderRef] = order.OrderID
	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *order
	return &out, nil
}

func (r *MemoryRepository) GetOrderByProviderRef(ctx context.Context, providerRef string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orderID, ok := r.ordersByRef[providerRef]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.orders[orderID]
	return &out, nil
}

// MarkOrderPaid performs the status compare-and-swap and the credit grant
// under one lock, matching the SQL implementations' transaction.
func (r *MemoryRepository) MarkOrderPaid(ctx context.Context, providerRef string) (*Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orderID, ok := r.ordersByRef[providerRef]
	if !ok {
		return nil, false, nil
	}
	order := r.orders[orderID]
	if order.Status != OrderStatusPending {
		return nil, false, nil
	}

	user, ok := r.usersByID[order.UserID]
	if !ok {
		return nil, false, ErrNotFound
	}

	now := time.Now()
	order.Status = OrderStatusPaid
	order.UpdatedAt = now
	user.Credits += order.CreditsOwed
	user.UpdatedAt = now

	out := *order
	return &out, true, nil
}

func (r *MemoryRepository) MarkOrderFailed(ctx context.Context, providerRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orderID, ok := r.ordersByRef[providerRef]
	if !ok {
		return false, nil
	}
	order := r.orders[orderID]
	if order.Status != OrderStatusPending {
		return false, nil
	}
	order.Status = OrderStatusFailed
	order.UpdatedAt = time.Now()
	return true, nil
}

func (r *MemoryRepository) ConsumeCredit(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.usersByID[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if u.Credits < 1 {
		return 0, ErrInsufficientCredits
	}
	u.Credits--
	u.UpdatedAt = time.Now()
	return u.Credits, nil
}

var _ Repository = (*MemoryRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
var _ Repository = (*SQLiteRepository)(nil)
