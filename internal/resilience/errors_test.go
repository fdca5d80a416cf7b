package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("HTTP 503"), false)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
	if IsTimeout(err) {
		t.Error("HTTP 503 should not be a timeout")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("deadline"), true)
	wrapped := fmt.Errorf("geocode: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
	if !IsTimeout(wrapped) {
		t.Error("expected wrapped timeout to be a timeout")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTimeout(nil) {
		t.Error("nil error should not be a timeout")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_ConnectionErrors(t *testing.T) {
	for _, e := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		err := fmt.Errorf("dial tcp: %w", e)
		if !IsTransient(err) {
			t.Errorf("%v should be transient", e)
		}
		if IsTimeout(err) {
			t.Errorf("%v should not be a timeout", e)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	cases := []error{
		context.DeadlineExceeded,
		fmt.Errorf("Get \"x\": %w", context.DeadlineExceeded),
		&net.DNSError{IsTimeout: true, Err: "timeout"},
		errors.New("read tcp 127.0.0.1: i/o timeout"),
	}
	for _, err := range cases {
		if !IsTimeout(err) {
			t.Errorf("expected %v to be a timeout", err)
		}
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", err)
		}
	}
}

func TestIsTimeout_Canceled(t *testing.T) {
	if IsTimeout(context.Canceled) {
		t.Error("cancellation is not a timeout")
	}
}

func TestIsTransient_StringPatterns(t *testing.T) {
	for _, p := range []string{"connection reset by peer", "broken pipe", "unexpected EOF"} {
		if !IsTransient(errors.New(p)) {
			t.Errorf("expected %q to be transient", p)
		}
	}
}
