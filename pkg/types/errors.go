package types

import (
	"errors"
	"fmt"
)

// Storage and query errors.
var (
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidData         = errors.New("invalid entity data")
	ErrConstraint          = errors.New("constraint violation")
	ErrUnknownCollection   = errors.New("unknown collection")
	ErrUnknownIndex        = errors.New("unknown index")
	ErrInvalidQuery        = errors.New("invalid query")
	ErrEngineClosed        = errors.New("storage engine is closed")
	ErrMigrationInProgress = errors.New("migration already running")
)

// ValidationError reports a record that is not fully formed. It matches
// ErrInvalidData under errors.Is.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.Entity, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidData }

// NotFoundError reports an operation that required an entity to exist.
type NotFoundError struct {
	Collection string
	Key        any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Collection, e.Key, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// StorageError wraps an engine failure with the operation and collection it
// happened in.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MigrationError records the migration step that failed and, when known,
// the legacy record that caused it.
type MigrationError struct {
	Step   string
	Record string
	Err    error
}

func (e *MigrationError) Error() string {
	if e.Record == "" {
		return fmt.Sprintf("migration %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("migration %s (%s): %v", e.Step, e.Record, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
