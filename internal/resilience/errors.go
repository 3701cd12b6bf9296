package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// Sentinel errors for the fetch pipeline. Per-source errors (rate limit,
// circuit, transport) are contained at the connector boundary; only
// ErrNoValidData surfaces to callers of the aggregation manager.
var (
	// ErrCircuitOpen is returned when a call is rejected because the
	// source's circuit breaker is open. Retryable after the recovery timeout.
	ErrCircuitOpen = eris.New("circuit breaker is open")

	// ErrRateLimited is returned when the sliding-window quota for a
	// source/endpoint is exhausted. Retryable after the window elapses.
	ErrRateLimited = eris.New("rate limit exceeded")

	// ErrNoValidData is the terminal fetch error: every source failed or no
	// observation cleared the quality threshold.
	ErrNoValidData = eris.New("no valid data from any source")

	// ErrEmptyReconcileInput indicates reconciliation was invoked with zero
	// observations. Programmer error, not a runtime condition.
	ErrEmptyReconcileInput = eris.New("reconcile requires at least one observation")
)

// TransportErrorKind classifies transport failures for breaker accounting
// and logging.
type TransportErrorKind int

const (
	// TransportTimeout covers connect/read/total deadline expiry.
	TransportTimeout TransportErrorKind = iota
	// TransportRemote covers non-2xx responses from the provider.
	TransportRemote
	// TransportLocal covers connection setup and request build failures.
	TransportLocal
)

func (k TransportErrorKind) String() string {
	switch k {
	case TransportTimeout:
		return "timeout"
	case TransportRemote:
		return "remote"
	case TransportLocal:
		return "local"
	default:
		return "unknown"
	}
}

// TransportError wraps a failed upstream call with its classification and,
// for remote failures, the HTTP status code.
type TransportError struct {
	Kind       TransportErrorKind
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with a transport classification.
func NewTransportError(kind TransportErrorKind, statusCode int, err error) *TransportError {
	return &TransportError{Kind: kind, StatusCode: statusCode, Err: err}
}

// ClassifyTransportError derives a TransportError from a raw client error,
// distinguishing timeouts from local failures. Already-classified errors
// pass through unchanged.
func ClassifyTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTransportError(TransportTimeout, 0, err)
	}
	if errors.Is(err, syscall.ETIMEDOUT) ||
		strings.Contains(strings.ToLower(err.Error()), "deadline exceeded") {
		return NewTransportError(TransportTimeout, 0, err)
	}

	return NewTransportError(TransportLocal, 0, err)
}

// IsTransient reports whether an error is safe to retry: transport timeouts,
// retryable HTTP statuses, and common network-level failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.Kind == TransportTimeout {
			return true
		}
		return IsTransientHTTPStatus(te.StatusCode)
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
