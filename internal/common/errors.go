// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound = errors.New("not found")

	// ErrCategoryConflict means a name was asserted to have two different
	// categories. Fatal to the batch that caused it.
	ErrCategoryConflict = errors.New("category conflict")

	// ErrInvariantViolation means the store holds more than one distinct
	// category for a single name. Unreachable through the insert path,
	// which checks for conflicts; detected on lookup.
	ErrInvariantViolation = errors.New("name maps to multiple categories")

	// ErrEmptyQueue signals that no uncategorized names remain. A normal
	// terminal condition, not a failure.
	ErrEmptyQueue = errors.New("no uncategorized names remain")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConflictError carries the details of a category conflict: the transaction
// name and both disagreeing categories.
type ConflictError struct {
	Name     string
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("category conflict for %q: existing %q, incoming %q", e.Name, e.Existing, e.Incoming)
}

func (e *ConflictError) Unwrap() error {
	return ErrCategoryConflict
}

// NewConflictError creates a category conflict error for a name.
func NewConflictError(name, existing, incoming string) error {
	return &ConflictError{Name: name, Existing: existing, Incoming: incoming}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
