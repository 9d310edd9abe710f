package apperr

import "errors"

// Sentinel errors for the inventory core. Callers match with errors.Is;
// call sites wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	// ErrValidation rejects malformed input before any I/O happens.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound signals a missing referenced entity (product, warehouse,
	// location) or a missing inventory record on a read path.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock signals a business-rule violation on issue,
	// reserve or transfer-out: the requested quantity exceeds what is
	// available. No mutation has taken place.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidState signals a movement that would leave a record
	// inconsistent (negative on-hand, reserved above on-hand).
	ErrInvalidState = errors.New("invalid inventory state")

	// ErrPermissionDenied short-circuits a mutating call before any side
	// effect.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConcurrentModification signals a lock or version conflict. The
	// coordinator retries the operation once with fresh state before
	// surfacing it.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPersistence signals a connection or database failure. Always fatal
	// to the current call; the transaction is rolled back.
	ErrPersistence = errors.New("persistence failure")

	// ErrPoolExhausted signals that a database connection could not be
	// acquired within the configured timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// IsBusiness reports whether err is a domain-level failure that should be
// returned to the caller as-is, without being reclassified as a persistence
// problem by the transaction scope.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrPermissionDenied)
}
