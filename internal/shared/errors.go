package shared

import "errors"

// Error kinds. Domain packages wrap one of these so the HTTP layer can map
// failures to a status without importing every domain package.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates the request failed input or business validation.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness rule rejected the write.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict indicates the write raced a concurrent modification.
	ErrConflict = errors.New("conflict")
)
