package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no row matches the query
var ErrNotFound = errors.New("record not found")

// ErrMissingField is returned when a persisted row is missing a field the
// engine requires. Rows are rejected on read instead of letting zero values
// propagate into decisions.
var ErrMissingField = errors.New("required field missing")

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func missingField(entity, field string) error {
	return fmt.Errorf("%s.%s: %w", entity, field, ErrMissingField)
}
