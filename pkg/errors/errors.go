package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound             = "NOT_FOUND"
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeTransportUnavailable = "TRANSPORT_UNAVAILABLE"
	CodeHandshakeFailed      = "TRANSPORT_HANDSHAKE_FAILED"
	CodeTransitionRejected   = "TRANSITION_REJECTED"
	CodeFetchFailed          = "FETCH_FAILED"
	CodeSessionClosed        = "SESSION_CLOSED"
	CodeDeliveryUnconfirmed  = "DELIVERY_UNCONFIRMED"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
		Err:     err,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
		Err:     nil,
	}
}

func TooManyRequests(message string, err error) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
		Err:     err,
	}
}

// TransportUnavailable means there is no live connection; the caller must use the fallback path.
func TransportUnavailable(message string) *AppError {
	return &AppError{
		Code:    CodeTransportUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
	}
}

// HandshakeFailed is retried by the channel supervisor and never shown to the user.
func HandshakeFailed(err error) *AppError {
	return &AppError{
		Code:    CodeHandshakeFailed,
		Message: "live channel handshake failed",
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// TransitionRejected reports a violated role or state precondition; nothing was mutated.
func TransitionRejected(message string, err error) *AppError {
	return &AppError{
		Code:    CodeTransitionRejected,
		Message: message,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// FetchFailed reports a failed fallback retrieval; previously visible history is kept.
func FetchFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeFetchFailed,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func SessionClosed() *AppError {
	return &AppError{
		Code:    CodeSessionClosed,
		Message: "room session is closed",
		Status:  http.StatusGone,
	}
}

// DeliveryUnconfirmed means a live frame was written but neither its echo nor a rejection
// arrived. The message may or may not have been stored.
func DeliveryUnconfirmed(err error) *AppError {
	return &AppError{
		Code:    CodeDeliveryUnconfirmed,
		Message: "message delivery was not confirmed",
		Status:  http.StatusGatewayTimeout,
		Err:     err,
	}
}

// FromCode rebuilds an AppError received as a bare code, e.g. in a websocket error frame.
func FromCode(code, message string) *AppError {
	status := http.StatusInternalServerError
	switch code {
	case CodeNotFound:
		status = http.StatusNotFound
	case CodeBadRequest:
		status = http.StatusBadRequest
	case CodeUnauthorized:
		status = http.StatusUnauthorized
	case CodeForbidden:
		status = http.StatusForbidden
	case CodeConflict, CodeTransitionRejected:
		status = http.StatusConflict
	case CodeTooManyRequests:
		status = http.StatusTooManyRequests
	case "":
		code = CodeInternal
	}
	return New(code, message, status, nil)
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError with the given code anywhere in its chain.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status attached to err, or 500 for foreign errors.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
