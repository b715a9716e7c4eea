// Package sentinel holds the error kinds shared by the stores, the registration
// workflow and the transports. Callers match them with errors.Is.
package sentinel

import "errors"

// Store-level errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrPoolExhausted = errors.New("promo code pool exhausted")
	ErrUnavailable   = errors.New("store unavailable")
)

// Workflow-level errors. All of them are recoverable by the participant.
var (
	ErrInvalidFormat     = errors.New("invalid format")
	ErrNotEligible       = errors.New("not eligible")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrSessionExpired    = errors.New("session expired")
	ErrWrongStage        = errors.New("wrong stage")
)

// IsUserFacing reports whether err is one of the kinds the transport turns
// into a re-prompt instead of a generic failure.
func IsUserFacing(err error) bool {
	for _, kind := range []error{
		ErrInvalidFormat, ErrNotEligible, ErrAlreadyRegistered,
		ErrPoolExhausted, ErrConflict, ErrSessionExpired, ErrWrongStage,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
