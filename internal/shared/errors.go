package shared

import "errors"

// Error taxonomy shared by the ledger core and its callers. Domain packages wrap
// these with fmt.Errorf("...: %w", ...) so callers can branch with errors.Is.
var (
	// ErrValidation indicates malformed input such as a non-positive amount.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness clash, e.g. a duplicate item name.
	ErrConflict = errors.New("conflict")
	// ErrNotFound indicates an unknown item or batch id.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized indicates a missing or rejected credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the resolved role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates the identity collaborator could not be reached.
	ErrUnavailable = errors.New("service unavailable")
	// ErrPersistence indicates a transaction or connectivity failure. Safe to retry.
	ErrPersistence = errors.New("persistence failure")
)

// IsTransient reports whether err is safe for the caller to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrUnavailable)
}
