package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Expected business outcomes, surfaced as plain messages, never retried
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrNoNumbers          = errors.New("no numbers available at acceptable price")
	ErrCancelTooEarly     = errors.New("cancellation not allowed yet")
	ErrCodesDelivered     = errors.New("cannot cancel after a code was delivered")
	ErrActivationFinished = errors.New("activation already finished")
	ErrRateLimited        = errors.New("too many requests")
	ErrUnsupportedService = errors.New("no provider for requested service")

	// Lock contention on a shared key (payment id, account)
	ErrLockBusy = errors.New("resource is locked")

	// Storage-layer failures
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrInvalidExecContext = errors.New("invalid transaction handle")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
