// Package errors provides structured error handling for the worker.
// It defines AppError type with error codes for consistent result payloads.
package errors

import (
	"errors"
	"fmt"
)

// Error codes organized by category
const (
	// General errors (1000-1099)
	CodeSuccess       = 0
	CodeUnknown       = 1000
	CodeInvalidParams = 1001
	CodeInternalFault = 1002

	// Transfer errors (1100-1199)
	CodeDownloadFailed  = 1100
	CodeUploadFailed    = 1101
	CodeTransferTimeout = 1102
	CodeContentTooSmall = 1103
	CodeErrorPage       = 1104

	// Asset validation errors (1200-1299)
	CodeImageInvalid = 1200
	CodeAudioInvalid = 1201

	// Engine errors (1300-1399)
	CodeEngineUnreachable     = 1300
	CodeEngineRejected        = 1301
	CodeEngineExecutionFailed = 1302
	CodeEngineNoOutput        = 1303
	CodeEngineWrongOutput     = 1304
	CodeEngineTimeout         = 1305

	// Workflow template errors (1400-1499)
	CodeTemplateNotFound = 1400
	CodeTemplateSlot     = 1401

	// Storage errors (1500-1599)
	CodeDBError       = 1500
	CodeOutputMissing = 1501
)

// AppError represents a structured application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code int, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code int, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithDetail wraps an error with additional detail
func WrapWithDetail(code int, message string, detail string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Detail:  detail,
		Cause:   cause,
	}
}

// Is checks if the target error is an AppError with the specified code
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode extracts error code from error, returns CodeUnknown if not AppError
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetMessage extracts message from error. For wrapped errors the cause is
// included, since the caller has no other visibility into this worker.
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Cause != nil {
			return fmt.Sprintf("%s: %v", appErr.Message, appErr.Cause)
		}
		return appErr.Message
	}
	return err.Error()
}

// Predefined common errors
var (
	ErrInvalidParams = New(CodeInvalidParams, "Invalid parameters")

	// Engine
	ErrEngineUnreachable = New(CodeEngineUnreachable, "Generation engine not reachable")

	// Workflow
	ErrTemplateNotFound = New(CodeTemplateNotFound, "Workflow template not found")

	// Storage
	ErrDBError       = New(CodeDBError, "Database error")
	ErrOutputMissing = New(CodeOutputMissing, "Output artifact not found")
)
