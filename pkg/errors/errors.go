package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation        ErrorType = "VALIDATION"
	ErrorTypeNotFound          ErrorType = "NOT_FOUND"
	ErrorTypeConflict          ErrorType = "CONFLICT"
	ErrorTypeDanglingReference ErrorType = "DANGLING_REFERENCE"

	// Protocol errors
	ErrorTypeMalformedEnvelope ErrorType = "MALFORMED_ENVELOPE"
	ErrorTypeRemoteFailure     ErrorType = "REMOTE_FAILURE"

	// Orchestration errors
	ErrorTypeNotConnected          ErrorType = "NOT_CONNECTED"
	ErrorTypeReconciliationWarning ErrorType = "RECONCILIATION_WARNING"
	ErrorTypeSceneConsistency      ErrorType = "SCENE_CONSISTENCY"
	ErrorTypeCancelled             ErrorType = "CANCELLED"

	// Infrastructure errors
	ErrorTypeTransportFailure ErrorType = "TRANSPORT_FAILURE"
	ErrorTypeTimeout          ErrorType = "TIMEOUT"
	ErrorTypeUnavailable      ErrorType = "UNAVAILABLE"
	ErrorTypeInternal         ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for common error types

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewDanglingReferenceError reports an edge whose endpoints are not all present.
func NewDanglingReferenceError(edgeID string, missing ...string) *AppError {
	return &AppError{
		Type:       ErrorTypeDanglingReference,
		Message:    fmt.Sprintf("edge '%s' references missing node(s) %v", edgeID, missing),
		Details:    map[string]interface{}{"edgeID": edgeID, "missing": missing},
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewMalformedEnvelopeError reports misuse of a tagged-union payload.
func NewMalformedEnvelopeError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeMalformedEnvelope,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewRemoteFailureError wraps a response whose status flag is false.
func NewRemoteFailureError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRemoteFailure,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewNotConnectedError is returned when a call is attempted outside the connected state.
func NewNotConnectedError(state string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotConnected,
		Message:    fmt.Sprintf("backend not connected (state: %s)", state),
		Details:    map[string]interface{}{"state": state},
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewReconciliationWarning creates a non-fatal warning raised while folding a stream.
func NewReconciliationWarning(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeReconciliationWarning,
		Message:    message,
		HTTPStatus: http.StatusOK,
	}
}

// NewSceneConsistencyError reports a broken id-to-handle mapping.
func NewSceneConsistencyError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeSceneConsistency,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewCancelledError creates a cancellation error
func NewCancelledError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeCancelled,
		Message:    fmt.Sprintf("operation '%s' was cancelled", operation),
		HTTPStatus: 499,
	}
}

// NewTransportFailureError creates a network/deadline failure error
func NewTransportFailureError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransportFailure,
		Message:    fmt.Sprintf("transport failure during '%s'", operation),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    fmt.Sprintf("operation '%s' timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// NewUnavailableError creates a service unavailable error
func NewUnavailableError(service string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Message:    fmt.Sprintf("service '%s' is unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Helper functions

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// IsDanglingReference checks if an error is a dangling reference error
func IsDanglingReference(err error) bool {
	return IsType(err, ErrorTypeDanglingReference)
}

// IsMalformedEnvelope checks if an error is a malformed envelope error
func IsMalformedEnvelope(err error) bool {
	return IsType(err, ErrorTypeMalformedEnvelope)
}

// IsRemoteFailure checks if an error came from a status=false response
func IsRemoteFailure(err error) bool {
	return IsType(err, ErrorTypeRemoteFailure)
}

// IsNotConnected checks if an error is a not connected error
func IsNotConnected(err error) bool {
	return IsType(err, ErrorTypeNotConnected)
}

// IsTransportFailure checks if an error is a transport failure
func IsTransportFailure(err error) bool {
	return IsType(err, ErrorTypeTransportFailure)
}

// IsSceneConsistency checks if an error is a scene consistency violation
func IsSceneConsistency(err error) bool {
	return IsType(err, ErrorTypeSceneConsistency)
}

// IsCancelled checks if an error is a cancellation
func IsCancelled(err error) bool {
	return IsType(err, ErrorTypeCancelled)
}

// IsFatal reports whether err is unrecoverable for the session that raised it.
func IsFatal(err error) bool {
	return IsMalformedEnvelope(err) || IsSceneConsistency(err)
}

// HTTPStatusOf returns the HTTP status associated with err.
func HTTPStatusOf(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, keep its type and add context
	if appErr := GetAppError(err); appErr != nil {
		return &AppError{
			Type:       appErr.Type,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			Details:    appErr.Details,
			Cause:      appErr.Cause,
			HTTPStatus: appErr.HTTPStatus,
		}
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
