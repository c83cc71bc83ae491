package origin

import (
	"errors"
	"fmt"
)

// ErrBlocked is returned when the origin keeps answering 403 after the
// retry budget, identity rotations included.
var ErrBlocked = errors.New("origin access blocked (possible ban)")

// NetworkError wraps a transport-level failure that survived all
// retries.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("origin network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx origin response that survived all
// retries.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("origin returned status %d", e.StatusCode)
}
