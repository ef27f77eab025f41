package gateway

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/avasiliev/kaltrack/internal/common"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// Unwrap maps well-known statuses to the shared sentinels so callers can
// match with errors.Is instead of inspecting codes.
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return common.ErrNotFound
	case http.StatusConflict:
		return common.ErrConflict
	}
	return nil
}

// FailureClass determines how the sync queue reacts to a dispatch failure.
type FailureClass int

const (
	// Transient failures are retried with backoff: network errors,
	// timeouts, 5xx, 408 and 429.
	Transient FailureClass = iota

	// Permanent failures are not retried automatically: validation and
	// conflict rejections (4xx other than 401/408/429).
	Permanent

	// Unauthenticated means credentials are gone; the drain must stop.
	Unauthenticated
)

// Classify maps a gateway error to its failure class.
func Classify(err error) FailureClass {
	if errors.Is(err, common.ErrUnauthenticated) {
		return Unauthenticated
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusRequestTimeout, se.Status == http.StatusTooManyRequests:
			return Transient
		case se.Status >= 500:
			return Transient
		case se.Status >= 400:
			return Permanent
		default:
			return Transient
		}
	}

	// Anything that never produced a status line (DNS, connection reset,
	// timeout) may succeed on a later attempt.
	var ne net.Error
	if errors.As(err, &ne) {
		return Transient
	}
	return Transient
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}
