package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateLayout is the only accepted format for calendar dates in requests
const DateLayout = "2006-01-02"

var (
	// ErrEmptyValue indicates a required value is missing
	ErrEmptyValue = errors.New("is required")

	// ErrTooLong indicates a value exceeds its maximum length
	ErrTooLong = errors.New("is too long")

	// ErrInvalidName indicates a name contains characters that are not letters, spaces, apostrophes or hyphens
	ErrInvalidName = errors.New("contains invalid characters")

	// ErrInvalidDate indicates a date is not in YYYY-MM-DD format
	ErrInvalidDate = errors.New("must be a date in YYYY-MM-DD format")

	// ErrDateNotInPast indicates a date that should be in the past is today or later
	ErrDateNotInPast = errors.New("must be in the past")
)

// nameRegex accepts unicode letters plus the separators found in real names
var nameRegex = regexp.MustCompile(`^[\p{L}\p{M}][\p{L}\p{M} '\-.]*$`)

// FieldError describes a single invalid field in a request
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is a structured list of field validation failures
type FieldErrors []FieldError

// Add appends a field error
func (fe *FieldErrors) Add(field, message string) {
	*fe = append(*fe, FieldError{Field: field, Message: message})
}

// AddError appends a field error using the message of err
func (fe *FieldErrors) AddError(field string, err error) {
	fe.Add(field, err.Error())
}

// HasErrors reports whether any field failed validation
func (fe FieldErrors) HasErrors() bool {
	return len(fe) > 0
}

// Error joins all field errors into a single message
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, fmt.Sprintf("%s %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Name validates a person's first or last name.
// Returns the trimmed name.
func Name(value string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", ErrEmptyValue
	}
	if len([]rune(trimmed)) > maxLen {
		return "", ErrTooLong
	}
	if !nameRegex.MatchString(trimmed) {
		return "", ErrInvalidName
	}
	return trimmed, nil
}

// PastDate parses a YYYY-MM-DD date and checks that it lies strictly before the day of now
func PastDate(value string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, ErrEmptyValue
	}

	date, err := time.Parse(DateLayout, trimmed)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !date.Before(today) {
		return time.Time{}, ErrDateNotInPast
	}

	return date, nil
}
