// Package types provides the core data types shared across rosterbench.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Gender enumerates the accepted gender values for a person record.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// MinBirthYear is the earliest birth year accepted for a person record.
const MinBirthYear = 1900

// DateLayout is the wire format for birth dates.
const DateLayout = "2006-01-02"

// ParseGender canonicalizes a raw gender string. Matching is
// case-insensitive; the returned value is always one of the Gender
// constants.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return GenderMale, nil
	case "female":
		return GenderFemale, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
	}
}

// Valid reports whether g is one of the known gender values.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Person represents a single row of the persons table.
type Person struct {
	// ID is assigned by the storage layer on insert; zero before that.
	ID int64 `json:"id"`

	// FullName holds the person's name, "Surname Firstname Patronymic" form.
	FullName string `json:"full_name"`

	// BirthDate is a date-only value at UTC midnight.
	BirthDate time.Time `json:"birth_date"`

	// Gender is one of the Gender constants.
	Gender Gender `json:"gender"`
}

// ParseBirthDate parses an ISO date ("2006-01-02") into a UTC date value.
func ParseBirthDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBirthDate, s)
	}
	return t, nil
}

// Validate checks the record invariants: non-empty name, birth date within
// [1900-01-01, today], known gender. ID is not checked; it belongs to the
// storage layer.
func (p Person) Validate() error {
	return p.ValidateAt(time.Now().UTC())
}

// ValidateAt is Validate against an explicit reference date.
func (p Person) ValidateAt(now time.Time) error {
	if strings.TrimSpace(p.FullName) == "" {
		return ErrEmptyName
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidBirthDate)
	}
	if p.BirthDate.Year() < MinBirthYear {
		return fmt.Errorf("%w: year %d before %d", ErrInvalidBirthDate, p.BirthDate.Year(), MinBirthYear)
	}
	if p.BirthDate.After(now) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidBirthDate, p.BirthDate.Format(DateLayout))
	}
	if !p.Gender.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownGender, string(p.Gender))
	}
	return nil
}

// Age returns the person's age in whole years as of today.
func (p Person) Age() int {
	return p.AgeAt(time.Now().UTC())
}

// AgeAt returns the person's age in whole years as of the given date.
func (p Person) AgeAt(now time.Time) int {
	age := now.Year() - p.BirthDate.Year()
	if now.Month() < p.BirthDate.Month() ||
		(now.Month() == p.BirthDate.Month() && now.Day() < p.BirthDate.Day()) {
		age--
	}
	return age
}

// BirthDateString formats the birth date in wire form.
func (p Person) BirthDateString() string {
	return p.BirthDate.Format(DateLayout)
}

// String returns a human-readable one-line form used by listings.
func (p Person) String() string {
	return fmt.Sprintf("Name: %s, Date of Birth: %s, Gender: %s, Age: %d",
		p.FullName, p.BirthDateString(), p.Gender, p.Age())
}
