package peer

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call against the capture device.
type Kind int

const (
	// KindTransient covers network failures, timeouts, HTTP 5xx and 429.
	KindTransient Kind = iota
	// KindMalformed means the device answered with an unexpected shape.
	KindMalformed
	// KindRejected means the device refused the request (other 4xx).
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindRejected:
		return "rejected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error carries the operation, classification and (if any) HTTP status of a
// failed device call.
type Error struct {
	Op   string
	Kind Kind
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrInvalidURL is returned by New for a device address it cannot use.
var ErrInvalidURL = errors.New("invalid device url")

// ErrMalformed is matched by errors.Is for every KindMalformed error, including
// ones raised outside this package (e.g. progress that regresses).
var ErrMalformed = errors.New("malformed response")

func (e *Error) Is(target error) bool {
	return target == ErrMalformed && e.Kind == KindMalformed
}

// Malformed builds a KindMalformed error for op.
func Malformed(op string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: KindMalformed, Err: fmt.Errorf(format, args...)}
}

func statusError(op string, code int, body []byte) *Error {
	kind := KindMalformed
	switch {
	case code >= 500 || code == http.StatusTooManyRequests:
		kind = KindTransient
	case code >= 400:
		kind = KindRejected
	}
	return &Error{Op: op, Kind: kind, Code: code, Err: fmt.Errorf("unexpected status: %s", body)}
}

// IsRetryable returns true for transient errors worth retrying:
// connection-level failures and HTTP 5xx/429 responses.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == KindTransient
	}
	// Not classified = connection-level failure, always retry.
	return err != nil
}
