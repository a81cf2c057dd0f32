package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound       = errors.New("inventory record not found")
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrVersionConflict      = errors.New("version conflict")
	ErrAlreadyApplied       = errors.New("transaction already applied")
	ErrTransport            = errors.New("transport error")
	ErrTimedOut             = errors.New("timed out waiting for transaction")
	ErrLeaseNotObtained     = errors.New("partition lease not obtained")
)

// TransportError wraps a failure talking to the log, the store or a sink.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable reports whether err belongs to a category that is recovered locally.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrVersionConflict)
}

// ErrorKind returns a short label for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedTransaction):
		return "malformed"
	case errors.Is(err, ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrAlreadyApplied):
		return "already_applied"
	case errors.Is(err, ErrTimedOut):
		return "timed_out"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
