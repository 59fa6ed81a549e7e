package domain

import (
	"errors"
	"fmt"
)

// ErrSequenceDisorder indicates a duplicate or out-of-order event sequence
// number inside a single aggregate's history. This is a data-integrity
// failure and always aborts the operation that detected it.
var ErrSequenceDisorder = errors.New("event sequence disorder")

// ErrNotFound indicates the aggregate has no recorded events.
var ErrNotFound = errors.New("aggregate not found")

// Stable error codes returned to callers alongside the message.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeNotResolved       = "not_resolved"
	CodeAlreadyClosed     = "already_closed"
	CodeNotReopenable     = "not_reopenable"
	CodeTierOutOfRange    = "tier_out_of_range"
	CodeUnknownStage      = "unknown_stage"
	CodeUnknownSeverity   = "unknown_severity"
	CodeAlreadyExists     = "already_exists"
	CodeSuggestionState   = "suggestion_state"
	CodeActorForbidden    = "actor_forbidden"
	CodeInvalidInput      = "invalid_input"
)

// ValidationError is a rejected business rule. The aggregate is untouched
// and no event has been appended when one of these is returned.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// GuardrailError is a hard policy violation, distinct from ordinary
// validation so callers can alert on it (e.g. an AI actor accepting its
// own suggestion).
type GuardrailError struct {
	Code    string
	Message string
}

func (e *GuardrailError) Error() string {
	return fmt.Sprintf("guardrail %s: %s", e.Code, e.Message)
}

// NewGuardrailError builds a GuardrailError with a formatted message.
func NewGuardrailError(code, format string, args ...interface{}) *GuardrailError {
	return &GuardrailError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation or guardrail rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ge *GuardrailError
	return errors.As(err, &ve) || errors.As(err, &ge)
}
