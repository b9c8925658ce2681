package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeForbidden    = "forbidden"
	ErrCodePersistence  = "persistence_failed"
	ErrCodeNotFound     = "not_found"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnauthorized = "unauthorized"
)

var (
	// ErrPermission is returned when the user is not allowed to act on a room or message.
	ErrPermission = errors.New("permission denied")
	// ErrPersistence is returned when the chat store rejects a read or write.
	ErrPersistence = errors.New("persistence failed")
	ErrNotFound    = errors.New("not found")
	ErrBadRequest  = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError maps an error returned by the hub to its wire-facing form.
// Store details are not exposed to clients.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrPermission):
		return coreError(ErrCodeForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	default:
		return coreError(ErrCodePersistence, "message not sent")
	}
}
