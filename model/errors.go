package model

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ErrUnauthorized: signature does not match the claimed identity. Not retryable.
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrLedgerUnavailable: the ledger failed or timed out. Safe to retry.
	ErrLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
	// ErrContentUnavailable: the content store could not serve or accept bytes.
	ErrContentUnavailable ErrorCode = "CONTENT_UNAVAILABLE"
	// ErrRepairFailure: a best-effort mirror/cache write failed. Logged only.
	ErrRepairFailure ErrorCode = "REPAIR_FAILURE"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternal       ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// WrapError attaches a code to an underlying failure.
func WrapError(code ErrorCode, message string, err error) *CodedError {
	return &CodedError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first CodedError in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrInternal
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
