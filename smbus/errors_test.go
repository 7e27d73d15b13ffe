package smbus

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusError_Success(t *testing.T) {
	if err := statusError("Read", StatusSuccess); err != nil {
		t.Errorf("Expected nil error for success status, got %v", err)
	}
}

func TestStatusError_KindMapping(t *testing.T) {
	cases := []struct {
		status Status
		kind   ErrorKind
	}{
		{StatusDeviceNotFound, KindNotFound},
		{StatusInvalidHandle, KindInvalidHandle},
		{StatusInvalidDeviceObject, KindInvalidHandle},
		{StatusInvalidParameter, KindInvalidParameter},
		{StatusInvalidRequestLen, KindInvalidParameter},
		{StatusReadError, KindReadError},
		{StatusReadTimedOut, KindReadTimeout},
		{StatusWriteError, KindWriteError},
		{StatusWriteTimedOut, KindWriteTimeout},
		{StatusDeviceIOFailed, KindDeviceIOFailed},
		{StatusDeviceAccessError, KindDeviceAccessError},
		{StatusDeviceNotSupported, KindDeviceAccessError},
		{StatusUnknownError, KindUnknown},
	}

	for _, tc := range cases {
		err := statusError("Op", tc.status)
		if got := KindOf(err); got != tc.kind {
			t.Errorf("Status %v: expected kind %v, got %v", tc.status, tc.kind, got)
		}
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("Status %v: expected *Error, got %T", tc.status, err)
		}
		if e.Code != byte(tc.status) {
			t.Errorf("Status %v: expected code 0x%02X, got 0x%02X", tc.status, byte(tc.status), e.Code)
		}
	}
}

func TestError_Is(t *testing.T) {
	err := NewReadError("Read", 0, nil)
	if !errors.Is(err, &Error{Kind: KindReadError}) {
		t.Error("Expected errors.Is to match on kind")
	}
	if errors.Is(err, &Error{Kind: KindWriteError}) {
		t.Error("Expected errors.Is not to match a different kind")
	}
}

func TestError_IsThroughWrapping(t *testing.T) {
	inner := NewWriteError("Write", BusyAddressNacked, nil)
	wrapped := fmt.Errorf("write of 3 bytes to 0xC8 failed: %w", inner)

	if KindOf(wrapped) != KindWriteError {
		t.Errorf("Expected KindWriteError through wrapping, got %v", KindOf(wrapped))
	}
	var e *Error
	if !errors.As(wrapped, &e) {
		t.Fatal("Expected errors.As to find *Error through wrapping")
	}
	if e.Code != BusyAddressNacked {
		t.Errorf("Expected sub-status 0x%02X, got 0x%02X", BusyAddressNacked, e.Code)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewReadError("Read", 0, cause)
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestError_Message(t *testing.T) {
	err := NewInvalidParameterError("Read", "byte count %d outside 1..%d", 100, MaxReadResponse)
	want := "Read: byte count 100 outside 1..61"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NewNotFoundError("Open")) {
		t.Error("Expected IsNotFound to be true")
	}
	if IsNotFound(NewReadError("Read", 0, nil)) {
		t.Error("Expected IsNotFound to be false for a read error")
	}
	if !IsTimeout(statusError("Read", StatusReadTimedOut)) {
		t.Error("Expected IsTimeout for read timeout")
	}
	if !IsTimeout(statusError("Write", StatusWriteTimedOut)) {
		t.Error("Expected IsTimeout for write timeout")
	}
	if IsTimeout(nil) {
		t.Error("Expected IsTimeout to be false for nil")
	}
}
