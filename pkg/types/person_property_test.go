package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_PersonValidationWindow validates that any date-only birth date
// between 1900-01-01 and the reference date passes validation, and any date
// outside that window fails.
func TestProperty_PersonValidationWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)
	lower := time.Date(MinBirthYear, 1, 1, 0, 0, 0, 0, time.UTC)
	windowDays := int(now.Sub(lower).Hours() / 24)

	properties.Property("birth dates inside the window validate", prop.ForAll(
		func(offsetDays int) bool {
			p := Person{
				FullName:  "Smith John Ivanovich",
				BirthDate: now.AddDate(0, 0, -offsetDays),
				Gender:    GenderMale,
			}
			return p.ValidateAt(now) == nil
		},
		gen.IntRange(0, windowDays),
	))

	properties.Property("future birth dates fail validation", prop.ForAll(
		func(offsetDays int) bool {
			p := Person{
				FullName:  "Smith John Ivanovich",
				BirthDate: now.AddDate(0, 0, offsetDays),
				Gender:    GenderMale,
			}
			return p.ValidateAt(now) != nil
		},
		gen.IntRange(1, 365*50),
	))

	properties.TestingRun(t)
}

// TestProperty_AgeBounds validates that the computed age for an in-window
// birth date is non-negative and never exceeds the window span in years.
func TestProperty_AgeBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)

	properties.Property("age stays within the validity window", prop.ForAll(
		func(offsetDays int) bool {
			p := Person{
				FullName:  "Smith John Ivanovich",
				BirthDate: now.AddDate(0, 0, -offsetDays),
				Gender:    GenderFemale,
			}
			age := p.AgeAt(now)
			return age >= 0 && age <= now.Year()-MinBirthYear
		},
		gen.IntRange(0, 365*(2026-MinBirthYear)),
	))

	properties.TestingRun(t)
}
