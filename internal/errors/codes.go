// Package errors defines the structured errors returned by the repair
// scheduler and their mapping to gRPC and HTTP status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for scheduler operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument  ErrorCode = 1000
	ErrCodeNotFound         ErrorCode = 1001
	ErrCodeDuplicateRequest ErrorCode = 1002

	// Server errors (5xx equivalent)
	ErrCodeInternal      ErrorCode = 2000
	ErrCodeUnavailable   ErrorCode = 2001
	ErrCodeConfiguration ErrorCode = 2002
	ErrCodeHistoryFailed ErrorCode = 2003
)

// String returns the name used in API error responses
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "OK"
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeDuplicateRequest:
		return "DUPLICATE_REQUEST"
	case ErrCodeUnavailable:
		return "UNAVAILABLE"
	case ErrCodeConfiguration:
		return "CONFIGURATION_ERROR"
	case ErrCodeHistoryFailed:
		return "HISTORY_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

// SchedulerError represents a structured error with code and context
type SchedulerError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *SchedulerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *SchedulerError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts SchedulerError to gRPC status
func (e *SchedulerError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *SchedulerError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeDuplicateRequest:
		return codes.AlreadyExists
	case ErrCodeUnavailable:
		return codes.Unavailable
	case ErrCodeConfiguration:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// HTTPStatus maps the error code to an HTTP status code
func (e *SchedulerError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateRequest:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewSchedulerError creates a new SchedulerError
func NewSchedulerError(code ErrorCode, message string, cause error) *SchedulerError {
	return &SchedulerError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *SchedulerError) WithDetail(key string, value interface{}) *SchedulerError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *SchedulerError {
	return NewSchedulerError(ErrCodeInvalidArgument, message, cause)
}

func TableNotFound(tableRef string) *SchedulerError {
	return NewSchedulerError(ErrCodeNotFound,
		fmt.Sprintf("Table reference '%s' was not found. Format must be <keyspace>.<table>", tableRef), nil).
		WithDetail("table_reference", tableRef)
}

func DuplicateRequest(idempotencyKey string) *SchedulerError {
	return NewSchedulerError(ErrCodeDuplicateRequest, fmt.Sprintf("request '%s' was already processed", idempotencyKey), nil).
		WithDetail("idempotency_key", idempotencyKey)
}

func ConfigurationError(message string) *SchedulerError {
	return NewSchedulerError(ErrCodeConfiguration, message, nil)
}

func InternalError(message string, cause error) *SchedulerError {
	return NewSchedulerError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *SchedulerError {
	return NewSchedulerError(ErrCodeUnavailable, message, cause)
}

func HistoryFailed(message string, cause error) *SchedulerError {
	return NewSchedulerError(ErrCodeHistoryFailed, message, cause)
}

// IsSchedulerError checks if an error is a SchedulerError
func IsSchedulerError(err error) bool {
	var se *SchedulerError
	return stderrors.As(err, &se)
}

// AsSchedulerError returns the SchedulerError in the error chain
func AsSchedulerError(err error) (*SchedulerError, bool) {
	var se *SchedulerError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *SchedulerError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsNotFound checks if an error carries the not found code
func IsNotFound(err error) bool {
	return err != nil && GetCode(err) == ErrCodeNotFound
}
