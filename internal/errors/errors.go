package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = new(ErrCodePermissionDenied, "permission denied")
	ErrHTTPClient       = new(ErrCodeHTTPClient, "http client error")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// store
	ErrStoreConflict = new(ErrCodeStoreConflict, "conflicting invoice state transition")

	// provisioning backend
	ErrProvisioning             = new(ErrCodeProvisioning, "provisioning backend error")
	ErrProvisioningAuth         = new(ErrCodeProvisioningAuth, "provisioning backend rejected credentials")
	ErrProvisioningRouteMissing = new(ErrCodeProvisioningRouteMissing, "provisioning backend route not found")
	ErrProvisioningUnavailable  = new(ErrCodeProvisioningUnavailable, "provisioning backend unavailable")
	ErrProvisioningRejected     = new(ErrCodeProvisioningRejected, "provisioning backend rejected request")

	// reconciliation
	ErrSchedulerTick = new(ErrCodeSchedulerTick, "reconciliation tick failed")

	// statusCodes maps errors to http status codes and is checked in order. An error carrying several marks maps to
	// the first one listed, so caller-facing kinds come before backend kinds.
	statusCodes = []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyExists, http.StatusConflict},
		{ErrStoreConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvalidOperation, http.StatusBadRequest},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrProvisioningUnavailable, http.StatusServiceUnavailable},
		{ErrProvisioningAuth, http.StatusBadGateway},
		{ErrProvisioningRouteMissing, http.StatusBadGateway},
		{ErrProvisioningRejected, http.StatusBadGateway},
		{ErrHTTPClient, http.StatusInternalServerError},
		{ErrDatabase, http.StatusInternalServerError},
		{ErrSchedulerTick, http.StatusInternalServerError},
		{ErrSystem, http.StatusInternalServerError},
	}
)

const (
	ErrCodeHTTPClient               = "http_client_error"
	ErrCodeSystemError              = "system_error"
	ErrCodeNotFound                 = "not_found"
	ErrCodeAlreadyExists            = "already_exists"
	ErrCodeValidation               = "validation_error"
	ErrCodeInvalidOperation         = "invalid_operation"
	ErrCodePermissionDenied         = "permission_denied"
	ErrCodeDatabase                 = "database_error"
	ErrCodeStoreConflict            = "store_conflict"
	ErrCodeProvisioning             = "provisioning_error"
	ErrCodeProvisioningAuth         = "provisioning_auth"
	ErrCodeProvisioningRouteMissing = "provisioning_route_missing"
	ErrCodeProvisioningUnavailable  = "provisioning_unavailable"
	ErrCodeProvisioningRejected     = "provisioning_rejected"
	ErrCodeSchedulerTick            = "scheduler_tick_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsPermissionDenied checks if an error is a permission denied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsStoreConflict checks if an error is a conflicting state transition
func IsStoreConflict(err error) bool {
	return errors.Is(err, ErrStoreConflict)
}

// IsProvisioning checks if an error came from the provisioning backend
func IsProvisioning(err error) bool {
	return errors.Is(err, ErrProvisioning)
}

func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}
