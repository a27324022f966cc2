package domain

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput       = errors.New("malformed input")
	ErrCalendarInvalid      = errors.New("invalid calendar date")
	ErrOutOfRange           = errors.New("value out of range")
	ErrNotFound             = errors.New("not found")
	ErrPartialBatchRejected = errors.New("batch rejected")
)

// Reason is the machine-readable cause of a rejected input. The bot maps it
// to a localized message key.
type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonCalendarInvalid Reason = "calendar_invalid"
	ReasonFutureDate      Reason = "future_date"
	ReasonTooOld          Reason = "too_old"
	ReasonNonPositiveAge  Reason = "non_positive_age"
	ReasonUnknownUnit     Reason = "unknown_unit"
	ReasonOutOfRange      Reason = "out_of_range"
	ReasonNotFound        Reason = "not_found"
)

// ParseError describes why a piece of user input was rejected.
// Err is one of the taxonomy sentinels above.
type ParseError struct {
	Reason Reason
	Input  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s: %v", e.Input, e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError builds a ParseError with the sentinel implied by reason.
func NewParseError(reason Reason, input string) error {
	var sentinel error
	switch reason {
	case ReasonCalendarInvalid:
		sentinel = ErrCalendarInvalid
	case ReasonFutureDate, ReasonTooOld, ReasonNonPositiveAge, ReasonOutOfRange:
		sentinel = ErrOutOfRange
	case ReasonNotFound:
		sentinel = ErrNotFound
	default:
		sentinel = ErrMalformedInput
	}
	return &ParseError{Reason: reason, Input: input, Err: sentinel}
}

// ReasonOf extracts the rejection reason from err, falling back to the
// sentinel it wraps. Returns "" for errors outside the taxonomy.
func ReasonOf(err error) Reason {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	switch {
	case errors.Is(err, ErrMalformedInput):
		return ReasonMalformed
	case errors.Is(err, ErrCalendarInvalid):
		return ReasonCalendarInvalid
	case errors.Is(err, ErrOutOfRange):
		return ReasonOutOfRange
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	}
	return ""
}
