package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors surfaced by the client.
var (
	// ErrUserNotFound is returned when a profile lookup matches nothing.
	ErrUserNotFound = errors.New("upstream: user not found")
	// ErrNoFallback is returned by like-list calls when no fallback
	// provider credentials were configured.
	ErrNoFallback = errors.New("upstream: no fallback provider configured")
)

// TransientError marks a request that kept failing after exhausting
// its retries. Gateways surface it as 502.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// HardError is a definitive upstream rejection that retrying cannot
// fix.
type HardError struct {
	Status int
	Body   string
}

func (e *HardError) Error() string {
	return fmt.Sprintf("upstream rejected request: status %d: %s", e.Status, e.Body)
}

// IsSkippable reports whether a bulk enumeration may continue past
// err. Protected and deleted accounts answer with 403 or 404, which
// should not abort a whole run.
func IsSkippable(err error) bool {
	var hard *HardError

	if !errors.As(err, &hard) {
		return false
	}

	return hard.Status == http.StatusForbidden || hard.Status == http.StatusNotFound
}
