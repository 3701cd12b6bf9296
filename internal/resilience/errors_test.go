package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_TimeoutTransportError(t *testing.T) {
	err := NewTransportError(TransportTimeout, 0, errors.New("read deadline"))
	if !IsTransient(err) {
		t.Error("expected timeout transport error to be transient")
	}
}

func TestIsTransient_RemoteTransportError_ByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := NewTransportError(TransportRemote, tt.status, errors.New("upstream"))
		if got := IsTransient(err); got != tt.want {
			t.Errorf("IsTransient(status %d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTransient_WrappedTransportError(t *testing.T) {
	inner := NewTransportError(TransportRemote, 429, errors.New("rate limited"))
	wrapped := fmt.Errorf("api call failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped transport error to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	err := errors.New("invalid input: missing field")
	if IsTransient(err) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("ECONNRESET should be transient")
	}
}

func TestIsTransient_ConnectionRefused(t *testing.T) {
	err := fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED)
	if !IsTransient(err) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_NetworkTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	transient := []string{
		"connection reset by peer",
		"write: broken pipe",
		"lookup api.example.com: no such host",
		"net/http: TLS handshake timeout",
		"read tcp 10.0.0.1: i/o timeout",
	}
	for _, msg := range transient {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestClassifyTransportError_PassThrough(t *testing.T) {
	orig := NewTransportError(TransportRemote, 502, errors.New("bad gateway"))
	got := ClassifyTransportError(fmt.Errorf("wrapped: %w", orig))
	if got != orig {
		t.Error("expected already-classified error to pass through")
	}
}

func TestClassifyTransportError_NetTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "timeout"}
	got := ClassifyTransportError(err)
	if got.Kind != TransportTimeout {
		t.Errorf("expected timeout kind, got %s", got.Kind)
	}
}

func TestClassifyTransportError_DeadlineExceeded(t *testing.T) {
	got := ClassifyTransportError(errors.New("context deadline exceeded"))
	if got.Kind != TransportTimeout {
		t.Errorf("expected timeout kind, got %s", got.Kind)
	}
}

func TestClassifyTransportError_DefaultLocal(t *testing.T) {
	got := ClassifyTransportError(errors.New("invalid URL"))
	if got.Kind != TransportLocal {
		t.Errorf("expected local kind, got %s", got.Kind)
	}
}

func TestTransportError_ErrorFormatting(t *testing.T) {
	withStatus := NewTransportError(TransportRemote, 503, errors.New("unavailable"))
	if withStatus.Error() != "transport remote (status 503): unavailable" {
		t.Errorf("unexpected message: %q", withStatus.Error())
	}

	noStatus := NewTransportError(TransportTimeout, 0, errors.New("read timeout"))
	if noStatus.Error() != "transport timeout: read timeout" {
		t.Errorf("unexpected message: %q", noStatus.Error())
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransportError(TransportLocal, 0, inner)
	if !errors.Is(te, inner) {
		t.Error("expected Unwrap to expose inner error")
	}
}
