package valuation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateAge is returned when a table has two entries for one age.
	ErrDuplicateAge = errors.New("duplicate age in coefficient table")

	// ErrNegativeAge is returned for entries with an age below zero.
	ErrNegativeAge = errors.New("negative age in coefficient table")

	// ErrPercentageRange is returned for percentages outside 0-100.
	ErrPercentageRange = errors.New("percentage out of range 0-100")

	// ErrAgeNotFound is returned when editing an age the table does not define.
	ErrAgeNotFound = errors.New("age not found in coefficient table")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// EntryError identifies the table row that failed validation.
type EntryError struct {
	Age int
	Err error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("age %d: %v", e.Age, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// IsClientError returns true if the error comes from invalid table input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateAge) ||
		errors.Is(err, ErrNegativeAge) ||
		errors.Is(err, ErrPercentageRange)
}
