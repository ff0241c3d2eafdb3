// Package errors defines error types and utilities for the DynamoDB PartiQL backend
package errors

import (
	"errors"
	"fmt"
)

// Common errors that can occur while compiling or planning queries
var (
	// ErrNoOperatorFound is returned when a condition string has no recognizable operator
	ErrNoOperatorFound = errors.New("no supported operator found in condition")

	// ErrUnsupportedOperator is returned for recognized but unimplementable constructs,
	// such as an ends-with LIKE pattern
	ErrUnsupportedOperator = errors.New("unsupported operator")

	// ErrUnsupportedType is returned when a value cannot be converted to a
	// DynamoDB attribute value
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmptySet is returned when a set value is empty and its member type
	// cannot be determined
	ErrEmptySet = errors.New("cannot determine set type from an empty set")

	// ErrMixedSet is returned when a set contains mixed or unsupported member types
	ErrMixedSet = errors.New("set contains mixed or unsupported member types")

	// ErrUnsatisfiableSort is returned when a requested ordering cannot be honored
	// by any available query target
	ErrUnsatisfiableSort = errors.New("unsatisfiable sort")

	// ErrMissingTableName is returned when a query configuration has no table name
	ErrMissingTableName = errors.New("table name is required")

	// ErrUnknownConfigKey is returned when a query configuration contains a key
	// this backend does not support
	ErrUnknownConfigKey = errors.New("unknown configuration key")

	// ErrInvalidPagination is returned when pagination data fails validation
	ErrInvalidPagination = errors.New("invalid pagination data")

	// ErrEmptyData is returned when a write statement is compiled with no fields
	ErrEmptyData = errors.New("no fields provided")

	// ErrSchemaLookup is returned when the table description collaborator fails
	ErrSchemaLookup = errors.New("schema lookup failed")
)

// BackendError represents a detailed error with operation context
type BackendError struct {
	Err   error
	Op    string
	Table string
}

// Error implements the error interface
func (e *BackendError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("clearskies-aws: %s failed for table %q: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("clearskies-aws: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target error
func (e *BackendError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new BackendError
func NewError(op, table string, err error) *BackendError {
	return &BackendError{
		Op:    op,
		Table: table,
		Err:   err,
	}
}

// IsParseError checks if an error indicates an unparseable condition
func IsParseError(err error) bool {
	return errors.Is(err, ErrNoOperatorFound)
}

// IsUnsupportedOperator checks if an error indicates an unimplementable construct
func IsUnsupportedOperator(err error) bool {
	return errors.Is(err, ErrUnsupportedOperator)
}

// IsUnsatisfiableSort checks if an error indicates a sort that no target can honor
func IsUnsatisfiableSort(err error) bool {
	return errors.Is(err, ErrUnsatisfiableSort)
}

// IsSchemaLookup checks if an error came from the table description collaborator
func IsSchemaLookup(err error) bool {
	return errors.Is(err, ErrSchemaLookup)
}
