package types

import "errors"

// Person validation errors
var (
	// ErrEmptyName is returned when a person's full name is empty or blank
	ErrEmptyName = errors.New("empty full name")

	// ErrInvalidBirthDate is returned when a birth date is malformed,
	// before the accepted range, or in the future
	ErrInvalidBirthDate = errors.New("invalid birth date")

	// ErrUnknownGender is returned when a gender value is not in the enumeration
	ErrUnknownGender = errors.New("unknown gender")
)
