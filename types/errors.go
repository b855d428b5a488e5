package types

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when a record or permission does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the permission or record
	ErrForbidden = errors.New("forbidden: ownership mismatch")

	// ErrInvalidDuration is returned when a grant duration is not a positive number of hours
	ErrInvalidDuration = errors.New("invalid duration: must be greater than zero")

	// ErrInvalidGrantee is returned for self-grants and missing grantees
	ErrInvalidGrantee = errors.New("invalid grantee")

	// ErrAlreadyRevoked is returned when revoking a permission that is already revoked
	ErrAlreadyRevoked = errors.New("permission already revoked")

	// ErrStorage is matched by every StorageError
	ErrStorage = errors.New("storage error")

	// ErrInvalidAccessType is returned for access types outside full, recent, specific and labs
	ErrInvalidAccessType = errors.New("invalid access type")

	// ErrInvalidOwner is returned when an operation is missing its owner identity
	ErrInvalidOwner = errors.New("invalid owner")

	// ErrInvalidRecord is returned when a record payload cannot be stored
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnauthorizedRole is returned when a principal's role lacks the required capability
	ErrUnauthorizedRole = errors.New("role not authorized for operation")
)

// StorageError reports a failure of the underlying persistence layer.
// It is always surfaced to the caller and never retried by this module.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err as a StorageError for the named operation.
// A nil err yields nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
