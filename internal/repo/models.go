package repo

import "time"

// Order statuses. Paid and failed are terminal.
const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// User represents the users table row.
type User struct {
	ID           string
	Phone        string
	Name         string
	PasswordHash string
	Credits      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser carries data used to create a user at signup.
type NewUser struct {
	Phone        string
	Name         string
	PasswordHash string
}

// Order represents a row in the orders table. OrderID is the externally
// shareable identifier; ProviderRef is the payment provider's opaque handle.
type Order struct {
	ID          string
	OrderID     string
	UserID      string
	PackageID   string
	CreditsOwed int64
	AmountDue   int64
	Status      string
	Provider    string
	ProviderRef string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the order status permits no further transitions.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusFailed
}
