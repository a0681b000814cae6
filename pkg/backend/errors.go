package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is wrapped by a TransportError for HTTP 401 replies.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrReadTimeout is returned by a streamed body when no data arrived
	// within the configured read timeout.
	ErrReadTimeout = errors.New("timed out waiting for stream data")
)

// TransportError is a connection failure or a non-success HTTP status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BackendError is a well-formed reply whose status is not "success".
type BackendError struct {
	Op      string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return e.Op + ": backend reported failure"
	}
	return e.Op + ": " + e.Message
}
