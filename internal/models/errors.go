package models

import "fmt"

// Error is a user-visible outcome with a stable code. Two Errors match under
// errors.Is when their codes are equal, so a sentinel can be refined with a
// more specific message via WithMessage.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a formatted message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

const (
	CodeValidation        = "VALIDATION"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeMaxLevel          = "MAX_LEVEL"
	CodeBelowMinimum      = "BELOW_MINIMUM"
	CodeOnCooldown        = "ON_COOLDOWN"
	CodeDisabled          = "DISABLED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeTransient         = "TRANSIENT"
	CodeClockSkew         = "CLOCK_SKEW"
)

var (
	ErrValidation        = &Error{Code: CodeValidation, Message: "invalid request"}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrMaxLevel          = &Error{Code: CodeMaxLevel, Message: "machine is at max level"}
	ErrBelowMinimum      = &Error{Code: CodeBelowMinimum, Message: "amount is below the cashout minimum"}
	ErrOnCooldown        = &Error{Code: CodeOnCooldown, Message: "cashout is on cooldown"}
	ErrDisabled          = &Error{Code: CodeDisabled, Message: "feature is disabled"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict          = &Error{Code: CodeConflict, Message: "state conflict"}
	ErrTransient         = &Error{Code: CodeTransient, Message: "try again"}
	ErrClockSkew         = &Error{Code: CodeClockSkew, Message: "clock moved backwards"}
)
