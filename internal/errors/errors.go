// Package errors provides structured error handling for portsniffer operations.
// It defines error codes, error types, and utilities for classifying errors
// that abort a run before any probe is issued.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	CodeUnknown ErrorCode = "UNKNOWN"

	// Pre-scan validation errors. A run failing with any of these never starts probing.
	CodeInvalidPortSpec      ErrorCode = "INVALID_PORT_SPEC"
	CodeUnresolvableTarget   ErrorCode = "UNRESOLVABLE_TARGET"
	CodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// CodeCanceled marks a user-triggered abort. It is never returned as a failure
	// by the scanning engine; it exists so callers can tag log entries.
	CodeCanceled ErrorCode = "CANCELED"
)

// Exit codes used by the command line.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// ScanError represents an error that prevents a scan from starting.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *ScanError) WithContext(key string, value interface{}) *ScanError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewScanErrorWithTarget creates a scan error for a specific target.
func NewScanErrorWithTarget(code ErrorCode, message, target string) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Context: make(map[string]interface{}),
	}
}

// WrapScanErrorWithTarget wraps an error with target information.
func WrapScanErrorWithTarget(code ErrorCode, message, target string, err error) *ScanError {
	return &ScanError{
		Code:    code,
		Message: message,
		Target:  target,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// GetCode extracts the error code from an error chain if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if stderrors.As(err, &scanErr) {
		return scanErr.Code
	}
	var cfgErr *ConfigError
	if stderrors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return GetCode(err) == code
}

// IsFatal determines if an error must abort the run before scanning.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeInvalidPortSpec, CodeUnresolvableTarget, CodeInvalidConfiguration:
		return true
	default:
		return false
	}
}

// ExitCode maps an error returned from a run to a process exit status.
func ExitCode(err error) int {
	if err == nil || IsCode(err, CodeCanceled) {
		return ExitOK
	}
	return ExitFailure
}

// Common error creation functions

// ErrInvalidPortSpec creates an error for a malformed port or range expression.
func ErrInvalidPortSpec(spec, reason string) *ScanError {
	return NewScanError(CodeInvalidPortSpec, fmt.Sprintf("invalid port specification %q: %s", spec, reason)).
		WithContext("spec", spec)
}

// ErrUnresolvableTarget creates an error for a target that did not resolve to a usable address.
func ErrUnresolvableTarget(target string, err error) *ScanError {
	return WrapScanErrorWithTarget(CodeUnresolvableTarget, "target could not be resolved", target, err)
}
