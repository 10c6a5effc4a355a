package cowin

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited matches a TransportError caused by a 403 from the API.
	ErrRateLimited = errors.New("too many requests sent to cowin, retry later")

	ErrSelectionNotFound = errors.New("selection not found")
)

// TransportError reports a request that failed on the network or returned a
// non-200 status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusForbidden
}

// MalformedResponseError reports a body that is not JSON or lacks the array
// the caller expects under Key.
type MalformedResponseError struct {
	Op  string
	Key string
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: missing %q", e.Op, e.Key)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
