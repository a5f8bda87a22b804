package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means no bearer token was available; the request was not sent.
	ErrUnauthorized = errors.New("unauthorized: no session token")
	// ErrInvalidURL means the request URL could not be built.
	ErrInvalidURL = errors.New("invalid url")
	// ErrDecoding means the response body was not the expected JSON.
	ErrDecoding = errors.New("decoding error")
)

// RequestFailedError reports a transport failure or a non-2xx response.
type RequestFailedError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("request failed: %s", e.Reason)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// Message extracts the human readable text of any error produced by this package.
func Message(err error) string {
	var failed *RequestFailedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &failed):
		return failed.Reason
	case errors.Is(err, ErrUnauthorized):
		return "You are not signed in."
	case errors.Is(err, ErrDecoding):
		return "The server sent an unexpected response."
	case errors.Is(err, ErrInvalidURL):
		return "The server address is invalid."
	default:
		return err.Error()
	}
}
