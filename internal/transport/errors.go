package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned for every failed request: network failures,
// timeouts, undecodable bodies and non-2xx responses.
// StatusCode is 0 when no response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.Path, e.Err)
	case e.Body == "":
		return fmt.Sprintf("%s %s: server returned status %d", e.Method, e.Path, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: server returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// TransportError with a response
func StatusCode(err error) int {
	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 response from the API
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
