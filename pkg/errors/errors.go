// Package errors defines the coded errors shared by the collector, the
// script interpreter and the gcsim tooling.
package errors

import (
	"errors"
	"fmt"
)

// Codes carried by AppError. Scripts name them in `try` lines, so the
// strings are part of the script language.
const (
	CodeUnknown        = "UNKNOWN_ERROR"
	CodeInvalidHandle  = "INVALID_HANDLE"
	CodeDoubleRelease  = "DOUBLE_RELEASE"
	CodeClassError     = "CLASS_ERROR"
	CodeInvariant      = "INVARIANT_VIOLATION"
	CodeOutOfMemory    = "OUT_OF_MEMORY"
	CodeScriptError    = "SCRIPT_ERROR"
	CodeExpectation    = "EXPECTATION_FAILED"
	CodeDatabaseError  = "DATABASE_ERROR"
	CodeUploadError    = "UPLOAD_ERROR"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeConfigError    = "CONFIG_ERROR"
	CodeSnapshotError  = "SNAPSHOT_ERROR"
	CodeSimulationFail = "SIMULATION_ERROR"
)

// AppError is an error tagged with one of the codes above. Two AppErrors
// match under errors.Is when their codes are equal.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return "[" + e.Code + "] " + e.Message
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with code. The result unwraps to err.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func Wrapf(code string, err error, format string, args ...any) *AppError {
	return Wrap(code, fmt.Sprintf(format, args...), err)
}

// Sentinels for errors.Is. Only the code is compared.
var (
	ErrInvalidHandle = New(CodeInvalidHandle, "invalid or stale handle")
	ErrDoubleRelease = New(CodeDoubleRelease, "object already released")
	ErrClassError    = New(CodeClassError, "class registration error")
	ErrInvariant     = New(CodeInvariant, "collector invariant violated")
	ErrOutOfMemory   = New(CodeOutOfMemory, "object arena exhausted")
	ErrScriptError   = New(CodeScriptError, "script error")
	ErrExpectation   = New(CodeExpectation, "expectation failed")
	ErrDatabaseError = New(CodeDatabaseError, "database error")
	ErrUploadError   = New(CodeUploadError, "upload error")
	ErrInvalidInput  = New(CodeInvalidInput, "invalid input")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrConfigError   = New(CodeConfigError, "configuration error")
)

// HasCode reports whether any AppError in err's tree carries code.
func HasCode(err error, code string) bool {
	return err != nil && errors.Is(err, &AppError{Code: code})
}

func IsInvalidHandle(err error) bool { return HasCode(err, CodeInvalidHandle) }
func IsDoubleRelease(err error) bool { return HasCode(err, CodeDoubleRelease) }
func IsClassError(err error) bool    { return HasCode(err, CodeClassError) }
func IsInvariant(err error) bool     { return HasCode(err, CodeInvariant) }
func IsOutOfMemory(err error) bool   { return HasCode(err, CodeOutOfMemory) }
func IsDatabaseError(err error) bool { return HasCode(err, CodeDatabaseError) }
func IsUploadError(err error) bool   { return HasCode(err, CodeUploadError) }
func IsNotFound(err error) bool      { return HasCode(err, CodeNotFound) }
func IsConfigError(err error) bool   { return HasCode(err, CodeConfigError) }

// GetErrorCode returns the code of the outermost AppError in err's chain,
// or CodeUnknown.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage returns the outermost AppError's message without its
// code or cause. Other errors yield their full text.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// FromPanic turns a recovered value into an error. Errors pass through
// unchanged; anything else becomes a SIMULATION_ERROR.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return Newf(CodeSimulationFail, "panic: %v", r)
}
