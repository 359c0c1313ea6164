package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is wrapped by backend clients when a request never reached the backend or its response
	// never arrived.
	ErrTransport = errors.New("backend unreachable")
	// ErrMalformedResponse is wrapped by backend clients when a successful response does not have the
	// expected shape.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// StatusError is returned by backend clients when the backend answered with a non-success status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}
