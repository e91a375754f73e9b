package domain

import "errors"

// Ledger error taxonomy. Engine operations wrap these with context and
// callers match them with errors.Is.
var (
	// ErrAlreadyExists is returned when a symbol or account name is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when a symbol or account cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrIssuerPolicyViolation is returned when the caller's principal breaks
	// the designated-issuer policy of an operation.
	ErrIssuerPolicyViolation = errors.New("issuer policy violation")

	// ErrPermissionDenied is returned when the caller does not host an account
	// it tries to act on.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument is returned for malformed names, symbols or currencies.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientBalance is returned when live holdings cannot cover an amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for non-positive or unrescalable quantities.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrConcurrentModification is returned when optimistic retries are exhausted.
	// It is the only error a caller may retry.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// IsRetryable reports whether err may succeed if the operation is repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
