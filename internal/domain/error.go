package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrAlreadyExists    = errors.New("entity already exists")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrConflict         = errors.New("conflicting entity state")
	ErrAlreadyFinalized = errors.New("payment already finalized")
	ErrLockBusy         = errors.New("resource is locked by another operation")

	// Confirmation errors
	ErrInvalidPayload   = errors.New("confirmation payload is missing or malformed")
	ErrAmountMismatch   = errors.New("reported amount does not match expected price")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
	ErrCourseNotPayable = errors.New("course pricing is missing or not payable")

	// Gateway errors. ErrGatewayUnavailable is transient: the same
	// confirmation can be retried safely. ErrGatewayDeclined is terminal:
	// the order is invalid/expired/declined and a new payment is required.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayDeclined    = errors.New("payment gateway declined the order")

	// Storage errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
