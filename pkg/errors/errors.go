package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents application-specific error codes. Codes are stable:
// clients map them to localized messages, so renaming one is a breaking change.
type ErrorCode string

const (
	// Validation errors
	ErrCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	ErrCodeUnknownEvent   ErrorCode = "UNKNOWN_EVENT"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Call orchestration precondition errors
	ErrCodeUserBusy            ErrorCode = "USER_BUSY"
	ErrCodeAlreadyQueued       ErrorCode = "ALREADY_QUEUED"
	ErrCodeCallAlreadyActive   ErrorCode = "CALL_ALREADY_ACTIVE"
	ErrCodeNoActiveCall        ErrorCode = "NO_ACTIVE_CALL"
	ErrCodeWrongStage          ErrorCode = "WRONG_STAGE"
	ErrCodeNotCallee           ErrorCode = "NOT_CALLEE"
	ErrCodeNotMatchParticipant ErrorCode = "NOT_MATCH_PARTICIPANT"
	ErrCodeCallNotRinging      ErrorCode = "CALL_NOT_RINGING"
	ErrCodePromptNotFound      ErrorCode = "PROMPT_NOT_FOUND"

	// Not found errors
	ErrCodeUserNotFound  ErrorCode = "USER_NOT_FOUND"
	ErrCodeMatchNotFound ErrorCode = "MATCH_NOT_FOUND"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError represents a structured application error with a stable code
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the ErrorCode from err, falling back to INTERNAL_ERROR
// for errors that are not AppErrors
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// MessageOf extracts the user-facing message from err
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal error"
}

// Precondition errors

func UserBusyError() *AppError {
	return New(ErrCodeUserBusy, "User is not available")
}

func AlreadyQueuedError() *AppError {
	return New(ErrCodeAlreadyQueued, "Already waiting in the live queue")
}

func CallAlreadyActiveError() *AppError {
	return New(ErrCodeCallAlreadyActive, "A call is already in progress for this match")
}

func NoActiveCallError() *AppError {
	return New(ErrCodeNoActiveCall, "No call is in progress for this match")
}

func WrongStageError(message string) *AppError {
	return New(ErrCodeWrongStage, message)
}

func NotCalleeError() *AppError {
	return New(ErrCodeNotCallee, "Only the callee may answer this call")
}

func NotMatchParticipantError() *AppError {
	return New(ErrCodeNotMatchParticipant, "User is not part of this match")
}

func PromptNotFoundError() *AppError {
	return New(ErrCodePromptNotFound, "No open stage prompt for this match")
}
