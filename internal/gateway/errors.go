package gateway

import (
	"errors"
	"fmt"
)

// ErrTimeout means the client-side deadline expired before a response
// arrived. Distinct from a transport failure: the request was cancelled by
// us, not dropped by the network.
var ErrTimeout = errors.New("deadline exceeded")

// ErrEmptyResult means the response parsed but the expected field was
// missing. Treated as a failure, not a success with empty output.
var ErrEmptyResult = errors.New("response missing expected field")

// ServerError means the server responded with a non-success status.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded with status %d", e.Status)
	}
	return fmt.Sprintf("server responded with status %d: %s", e.Status, e.Message)
}

// NetworkError means the request never reached the server or the response
// never arrived, before any status was seen.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a locally enforced deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsNetworkError reports whether err is a transport failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// AsServerError returns the failure status when the server answered with
// one.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
