package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport means the request never produced a response.
	ErrTransport = errors.New("expense api unreachable")
	// ErrUnauthorized means the API answered 401 or 403.
	ErrUnauthorized = errors.New("expense api rejected credentials")
)

// StatusError is any other non-2xx answer from the API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("expense api status %d", e.Status)
	}
	return fmt.Sprintf("expense api status %d: %s", e.Status, e.Message)
}

// ErrorKind is the coarse failure taxonomy used for logging and session handling.
type ErrorKind string

const (
	KindNetwork ErrorKind = "network"
	KindAuth    ErrorKind = "auth"
	KindServer  ErrorKind = "server"
)

// Classify maps an error returned by Client to its kind. Nil maps to "".
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindAuth
	case errors.Is(err, ErrTransport):
		return KindNetwork
	default:
		return KindServer
	}
}

// IsNotFound reports whether the API answered 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == 404
}
