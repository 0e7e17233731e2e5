package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport is returned when the request never got a response.
	ErrTransport = errors.New("transport failure")

	// ErrPayload is returned when a response body cannot be decoded.
	ErrPayload = errors.New("malformed response")

	// ErrNotFound is matched by a StatusError with code 404.
	ErrNotFound = errors.New("not found")
)

// StatusError is returned when the server answers with a non-success
// status or with an envelope whose success flag is false.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Is reports whether target is ErrNotFound and the status is 404.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Message returns the human readable part of err, preferring the text the
// server sent.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
