package stats

import (
	"errors"
	"fmt"
)

// Reason classifies a rejected command. Rejections never mutate state.
type Reason string

const (
	ReasonInsufficientResource Reason = "insufficient_resource"
	ReasonOnCooldown           Reason = "on_cooldown"
	ReasonInsufficientHealth   Reason = "insufficient_health"
	ReasonExclusivityConflict  Reason = "exclusivity_conflict"
	ReasonAlreadyActive        Reason = "already_active"
	ReasonUnknownAbility       Reason = "unknown_ability"
	ReasonMaxLevel             Reason = "max_level"
	ReasonInsufficientFunds    Reason = "insufficient_funds"
)

// ValidationError reports why a command was rejected.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Is matches any ValidationError with the same Reason, so callers can write
// errors.Is(err, stats.ErrOnCooldown).
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrInsufficientResource = &ValidationError{Reason: ReasonInsufficientResource}
	ErrOnCooldown           = &ValidationError{Reason: ReasonOnCooldown}
	ErrInsufficientHealth   = &ValidationError{Reason: ReasonInsufficientHealth}
	ErrExclusivityConflict  = &ValidationError{Reason: ReasonExclusivityConflict}
	ErrAlreadyActive        = &ValidationError{Reason: ReasonAlreadyActive}
	ErrUnknownAbility       = &ValidationError{Reason: ReasonUnknownAbility}
	ErrMaxLevel             = &ValidationError{Reason: ReasonMaxLevel}
	ErrInsufficientFunds    = &ValidationError{Reason: ReasonInsufficientFunds}
)

// Reject builds a ValidationError with a formatted detail.
func Reject(reason Reason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the Reason from err, if err wraps a ValidationError.
func ReasonOf(err error) (Reason, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Reason, true
	}
	return "", false
}
