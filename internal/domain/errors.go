package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidOwner is returned when a call is missing the tenant or user identity.
	ErrInvalidOwner = errors.New("tenant and user identity are required")
)

// MissingRequiredFieldError reports a raw record the normalizer cannot use. Field names what is
// absent; alternatives are joined with "|".
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// InvalidFeelingError reports a feeling value outside the fixed scale.
type InvalidFeelingError struct {
	Value string
}

func (e *InvalidFeelingError) Error() string {
	return fmt.Sprintf("invalid feeling %q", e.Value)
}

// RejectionReason classifies a normalization error for metrics and API responses.
func RejectionReason(err error) string {
	var missing *MissingRequiredFieldError
	var feeling *InvalidFeelingError
	switch {
	case errors.As(err, &missing):
		return "missing_required_field"
	case errors.As(err, &feeling):
		return "invalid_feeling"
	default:
		return "unknown"
	}
}
