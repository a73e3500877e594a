package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrUserNotFound       = errors.New("user not found")
	ErrScreenshotTooLarge = errors.New("screenshot too large")
)

// NetworkError is a failed request: transport failure (Status 0) or a
// non-2xx response.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Status
	}
	return 0
}

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool { return StatusCode(err) == http.StatusNotFound }

// UserMessage maps err to the text shown next to a login or settings form.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncorrectPassword):
		return "Incorrect password"
	case errors.Is(err, ErrUserNotFound):
		return "User not found"
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		if ne.Status == 0 {
			return "Cannot reach the server"
		}
		if ne.Message != "" {
			return ne.Message
		}
		return fmt.Sprintf("Request failed (HTTP %d)", ne.Status)
	}
	return err.Error()
}
