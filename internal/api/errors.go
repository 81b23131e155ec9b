package api

import (
	"errors"
	"net/http"

	"github.com/Abhisheksantra28/Streamfinity/internal/auth"
	"github.com/Abhisheksantra28/Streamfinity/internal/storage"
)

// RequestError carries an HTTP status alongside the client-facing message so
// handlers can surface failures without leaking internals.
type RequestError struct {
	Status  int
	Message string
	Details []string
}

func (e *RequestError) Error() string {
	return e.Message
}

func newRequestError(status int, message string, details ...string) *RequestError {
	return &RequestError{Status: status, Message: message, Details: details}
}

// BadRequestError reports malformed or invalid client input.
func BadRequestError(message string, details ...string) *RequestError {
	return newRequestError(http.StatusBadRequest, message, details...)
}

// UnauthorizedError reports missing or invalid credentials.
func UnauthorizedError(message string) *RequestError {
	return newRequestError(http.StatusUnauthorized, message)
}

// ForbiddenError reports an authenticated caller acting outside its rights.
func ForbiddenError(message string) *RequestError {
	return newRequestError(http.StatusForbidden, message)
}

// NotFoundError reports a missing resource.
func NotFoundError(message string) *RequestError {
	return newRequestError(http.StatusNotFound, message)
}

// ConflictError reports a uniqueness or state conflict.
func ConflictError(message string) *RequestError {
	return newRequestError(http.StatusConflict, message)
}

// InternalError hides the underlying failure behind a generic message.
func InternalError() *RequestError {
	return newRequestError(http.StatusInternalServerError, "internal server error")
}

// translateError maps storage and auth sentinels onto the HTTP statuses the
// API contract promises. Anything unrecognised becomes a 500 so raw error
// text never reaches clients.
func translateError(err error) *RequestError {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr
	case errors.Is(err, storage.ErrUserNotFound):
		return NotFoundError("user not found")
	case errors.Is(err, storage.ErrVideoNotFound):
		return NotFoundError("video not found")
	case errors.Is(err, storage.ErrUserExists):
		return ConflictError("username or email already in use")
	case errors.Is(err, storage.ErrInvalidCredentials):
		return UnauthorizedError("invalid credentials")
	case errors.Is(err, storage.ErrRefreshTokenMismatch):
		return UnauthorizedError("refresh token is expired or already used")
	case errors.Is(err, auth.ErrInvalidToken):
		return UnauthorizedError("invalid or expired token")
	case errors.Is(err, auth.ErrTokenMismatch):
		return UnauthorizedError("refresh token is expired or already used")
	default:
		return InternalError()
	}
}
