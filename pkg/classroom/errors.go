package classroom

import (
	"errors"
	"net/http"
)

// FallbackErrorMessage is reported when the platform gives no usable message.
const FallbackErrorMessage = "unexpected error from classroom service"

// ErrNotFound matches any 404 returned by the platform.
var ErrNotFound = errors.New("resource not found")

// ErrInvalidPayload indicates the platform answered with a body the client cannot accept.
var ErrInvalidPayload = errors.New("invalid payload from classroom service")

// APIError is a failed call to the platform. Message is the only detail meant
// for end users.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err is a platform not-found response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Message extracts the user-facing message of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
