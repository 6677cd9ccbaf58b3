package repo

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPhoneTaken indicates the phone number is already registered.
	ErrPhoneTaken = errors.New("phone already registered")

	// ErrInsufficientCredits indicates a credit debit would drive the
	// balance negative. No mutation is performed.
	ErrInsufficientCredits = errors.New("insufficient credits")
)
