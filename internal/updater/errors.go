package updater

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an update failure. The API maps codes to HTTP
// statuses.
type ErrorCode string

const (
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrCodeCheckFailed    ErrorCode = "CHECK_FAILED"
	ErrCodeDownloadFailed ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeStageFailed    ErrorCode = "STAGE_FAILED"
	ErrCodeNoStagedUpdate ErrorCode = "NO_STAGED_UPDATE"
	ErrCodeApplyFailed    ErrorCode = "APPLY_FAILED"
	ErrCodeRollbackFailed ErrorCode = "ROLLBACK_FAILED"
	ErrCodeNoBackup       ErrorCode = "NO_BACKUP"
	ErrCodeDisabled       ErrorCode = "DISABLED"
)

// Error is an update failure with a code and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code, so errors.Is(err,
// &Error{Code: ErrCodeNoBackup}) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) ErrorCode {
	var updErr *Error
	if errors.As(err, &updErr) {
		return updErr.Code
	}
	return ""
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
