package errors

import (
	"errors"
	"fmt"
)

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Code:    "VALIDATION_FAILED",
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string, identifier string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, identifier),
		Code:    "NOT_FOUND",
		Context: map[string]interface{}{
			"resource":   resource,
			"identifier": identifier,
		},
	}
}

// NewDatabaseError creates a new database error
func NewDatabaseError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeDatabase,
		Message: fmt.Sprintf("database operation failed: %s", operation),
		Code:    "DATABASE_ERROR",
		Cause:   cause,
		Context: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(field string, value interface{}, reason string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidInput,
		Message: fmt.Sprintf("invalid input for %s: %s", field, reason),
		Code:    "INVALID_INPUT",
		Context: map[string]interface{}{
			"field":  field,
			"value":  value,
			"reason": reason,
		},
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation string, timeout interface{}) *AppError {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Code:    "TIMEOUT",
		Context: map[string]interface{}{
			"operation": operation,
			"timeout":   timeout,
		},
	}
}

// NewPermissionError creates a new permission error
func NewPermissionError(operation string, resource string) *AppError {
	return &AppError{
		Type:    ErrorTypePermission,
		Message: fmt.Sprintf("permission denied for %s on %s", operation, resource),
		Code:    "PERMISSION_DENIED",
		Context: map[string]interface{}{
			"operation": operation,
			"resource":  resource,
		},
	}
}

// NewKeyDerivationError creates an error for a password/salt that cannot produce a key
func NewKeyDerivationError(reason string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeKeyDerivation,
		Message: fmt.Sprintf("could not derive encryption key: %s", reason),
		Code:    "KEY_DERIVATION_FAILED",
		Cause:   cause,
		Context: map[string]interface{}{
			"reason": reason,
		},
	}
}

// NewDecryptionError creates an error for a payload that failed authentication or decoding.
// The cause is kept for logging but never includes key material.
func NewDecryptionError(cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeDecryption,
		Message: "encrypted payload could not be decrypted",
		Code:    "DECRYPTION_FAILED",
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewStorageUnavailableError creates an error for a storage backend that could not be opened
func NewStorageUnavailableError(backend string, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorageUnavailable,
		Message: fmt.Sprintf("storage backend unavailable: %s", backend),
		Code:    "STORAGE_UNAVAILABLE",
		Cause:   cause,
		Context: map[string]interface{}{
			"backend": backend,
		},
	}
}

// NewRemoteUnavailableError creates a retryable error for network failures,
// timeouts and 5xx responses. status is 0 when no response was received.
func NewRemoteUnavailableError(operation string, status int, cause error) *AppError {
	return &AppError{
		Type:    ErrorTypeRemoteUnavailable,
		Message: fmt.Sprintf("remote unavailable during %s", operation),
		Code:    "REMOTE_UNAVAILABLE",
		Cause:   cause,
		Context: map[string]interface{}{
			"operation": operation,
			"status":    status,
		},
	}
}

// NewConflictError creates an error for a mutation whose target no longer exists remotely
func NewConflictError(resource string, identifier string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: fmt.Sprintf("%s was removed remotely: %s", resource, identifier),
		Code:    "CONFLICT",
		Context: map[string]interface{}{
			"resource":   resource,
			"identifier": identifier,
		},
	}
}

// NewOrderCollisionError creates an error describing tasks sharing a position
func NewOrderCollisionError(position int64, ids []string) *AppError {
	return &AppError{
		Type:    ErrorTypeOrderCollision,
		Message: fmt.Sprintf("%d tasks share position %d", len(ids), position),
		Code:    "ORDER_COLLISION",
		Context: map[string]interface{}{
			"position": position,
			"ids":      ids,
		},
	}
}

// NewAuthError creates an error for a rejected or expired credential
func NewAuthError(operation string, status int) *AppError {
	return &AppError{
		Type:    ErrorTypeAuth,
		Message: fmt.Sprintf("authentication required for %s", operation),
		Code:    "AUTH_REQUIRED",
		Context: map[string]interface{}{
			"operation": operation,
			"status":    status,
		},
	}
}

// NewLockedError creates an error for operations that need the encryption key
func NewLockedError(operation string) *AppError {
	return &AppError{
		Type:    ErrorTypeLocked,
		Message: fmt.Sprintf("task list is locked, unlock it before %s", operation),
		Code:    "LOCKED",
		Context: map[string]interface{}{
			"operation": operation,
		},
	}
}

// WrapError wraps an existing error with additional context
func WrapError(err error, errorType ErrorType, message string) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Code:    errorType.String(),
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsErrorType checks if the error is of the specified type
func IsErrorType(err error, errorType ErrorType) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.IsType(errorType)
	}
	return false
}

// GetUserMessage returns a user-friendly error message
func GetUserMessage(err error) string {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeValidation:
			return appErr.Message
		case ErrorTypeNotFound:
			return appErr.Message
		case ErrorTypeInvalidInput:
			return appErr.Message
		case ErrorTypeDatabase:
			return "A database error occurred. Please try again."
		case ErrorTypeTimeout:
			return "The operation timed out. Please try again."
		case ErrorTypePermission:
			return appErr.Message
		case ErrorTypeKeyDerivation:
			return "Could not unlock the task list. Check your password and try again."
		case ErrorTypeDecryption:
			return "Some tasks could not be decrypted and are shown as locked."
		case ErrorTypeStorageUnavailable:
			return "Local storage is unavailable. Changes may not be saved."
		case ErrorTypeRemoteUnavailable:
			return "The server is unreachable. Changes are saved locally and will sync later."
		case ErrorTypeConflict:
			return appErr.Message
		case ErrorTypeAuth:
			return "Your session has expired. Sign in again to resume syncing."
		case ErrorTypeLocked:
			return appErr.Message
		default:
			return "An unexpected error occurred. Please try again."
		}
	}
	return err.Error()
}

// GetErrorCode returns the error code for the error
func GetErrorCode(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}

// ShouldLogError determines if an error should be logged based on its type
func ShouldLogError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeInvalidInput, ErrorTypeLocked, ErrorTypeKeyDerivation:
			return false // These are user errors, not system errors
		case ErrorTypeDatabase, ErrorTypeTimeout, ErrorTypePermission, ErrorTypeStorageUnavailable:
			return true // These are system errors that should be logged
		default:
			return true
		}
	}
	return true // Unknown errors should be logged
}

// IsRetryable reports whether the operation that produced err may succeed later
// without any change on the caller's side.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeRemoteUnavailable, ErrorTypeTimeout:
			return true
		}
	}
	return false
}

// IsUserVisible reports whether err should be surfaced to the user rather than
// handled silently by the sync loop.
func IsUserVisible(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		switch appErr.Type {
		case ErrorTypeKeyDerivation, ErrorTypeAuth, ErrorTypeLocked, ErrorTypeValidation, ErrorTypeInvalidInput, ErrorTypeNotFound:
			return true
		}
	}
	return false
}
