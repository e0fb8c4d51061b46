// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tamra

import (
	stderrors "errors"
	"fmt"
)

// Error codes for the application, one per failure kind. Precondition
// violations and protocol conflicts are both
// modeled as AppError so callers can branch on Code with errors.As
// instead of string matching.
const (
	CodePrecondition      = "PRECONDITION_VIOLATION"
	CodeProtocolConflict  = "PROTOCOL_CONFLICT"
	CodeSerializationSize = "SERIALIZATION_SIZE_MISMATCH"
	CodeInvalidDirection  = "INVALID_DIRECTION"
)

// AppError is an application error carrying a stable code alongside the
// message, so callers can test the failure kind with errors.As rather
// than matching message text.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewAppError builds an AppError with no wrapped cause.
func NewAppError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// WrapAppError builds an AppError wrapping an existing error.
func WrapAppError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// ErrThrow is the sentinel the Ghost conflict-resolution THROW strategy
// returns: a protocol conflict explicitly escalated to
// abort rather than resolved.
var ErrThrow = NewAppError(CodeProtocolConflict, "conflict resolution strategy THROW")

// IsPrecondition reports whether err is a programmer-precondition
// violation.
func IsPrecondition(err error) bool {
	return stderrors.Is(err, NewAppError(CodePrecondition, ""))
}

// ErrorCode extracts the AppError code from err, or the empty string if
// err is not an AppError.
func ErrorCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
