package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists indicates an entity with the same ID already exists.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrValidation indicates a mutating call carried malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a lost-update was detected on a per-session
	// mutation after the bounded internal retries were exhausted.
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrConnection indicates a connection problem with the backing store.
	ErrConnection = errors.New("store connection error")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidID indicates the provided ID is invalid.
	ErrInvalidID = errors.New("invalid entity ID")
)

// NotFoundError wraps ErrNotFound with entity details.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a typed not found error.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a typed validation error.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError wraps ErrConflict with entity details.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s modified concurrently: %s", e.Entity, e.ID)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a typed conflict error.
func NewConflictError(entity, id string) error {
	return &ConflictError{Entity: entity, ID: id}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict checks if an error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}
