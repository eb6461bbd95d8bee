package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrNotFound indicates a referenced record does not exist. A merge against
// a missing record aborts only that merge and performs no mutation.
var ErrNotFound = errors.New("record not found")

// SchemaError indicates the extraction collaborator returned output that
// failed validation even after the bounded repair retry. The affected email
// is marked failed and excluded from success counters.
type SchemaError struct {
	Detail string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("extraction schema invalid: %s", e.Detail)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError wraps a validation failure as a SchemaError.
func NewSchemaError(detail string, err error) *SchemaError {
	return &SchemaError{Detail: detail, Err: err}
}

// IsSchemaError reports whether err (or its chain) is a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IntegrityError indicates a partially applied source reassignment. It must
// not occur while merges run in a transaction; when it does surface it is
// fatal for that merge only.
type IntegrityError struct {
	SurvivorID string
	RetiredID  string
	Err        error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("partial source reassignment %s <- %s: %v", e.SurvivorID, e.RetiredID, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err represents a collaborator timeout or
// cancellation. Timeouts fail the individual item, never the batch.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// TransientError wraps an error that is safe to retry (429, 5xx, network
// resets).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"overloaded",
		"rate limit",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
