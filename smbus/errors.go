package smbus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a driver error for programmatic handling.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindInvalidHandle
	KindInvalidParameter
	KindReadError
	KindReadTimeout
	KindWriteError
	KindWriteTimeout
	KindDeviceIOFailed
	KindDeviceAccessError
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidHandle:
		return "invalid handle"
	case KindInvalidParameter:
		return "invalid parameter"
	case KindReadError:
		return "read error"
	case KindReadTimeout:
		return "read timeout"
	case KindWriteError:
		return "write error"
	case KindWriteTimeout:
		return "write timeout"
	case KindDeviceIOFailed:
		return "device I/O failed"
	case KindDeviceAccessError:
		return "device access error"
	}
	return "unknown"
}

// Error provides structured error information for driver failures.
type Error struct {
	Kind    ErrorKind
	Op      string // Operation that failed (e.g., "Read", "Configure")
	Code    byte   // Raw bridge status or sub-status byte, if any
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(e.Kind.String())
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// kindOf maps a non-success bridge status to its error kind. Every status in
// the primitive contract has a deterministic mapping.
func kindOf(s Status) ErrorKind {
	switch s {
	case StatusDeviceNotFound:
		return KindNotFound
	case StatusInvalidHandle, StatusInvalidDeviceObject:
		return KindInvalidHandle
	case StatusInvalidParameter, StatusInvalidRequestLen:
		return KindInvalidParameter
	case StatusReadError:
		return KindReadError
	case StatusReadTimedOut:
		return KindReadTimeout
	case StatusWriteError:
		return KindWriteError
	case StatusWriteTimedOut:
		return KindWriteTimeout
	case StatusDeviceIOFailed:
		return KindDeviceIOFailed
	case StatusDeviceAccessError, StatusDeviceNotSupported:
		return KindDeviceAccessError
	}
	return KindUnknown
}

// statusError converts a non-success primitive status into a typed error.
// Returns nil for StatusSuccess.
func statusError(op string, s Status) error {
	if s.OK() {
		return nil
	}
	return &Error{
		Kind:    kindOf(s),
		Op:      op,
		Code:    byte(s),
		Message: s.String(),
	}
}

// NewNotFoundError creates an error for when no matching device exists.
func NewNotFoundError(op string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Code:    byte(StatusDeviceNotFound),
		Message: "no matching device found",
	}
}

// NewInvalidParameterError creates an error for locally rejected parameters.
func NewInvalidParameterError(op, format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvalidParameter,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewReadError creates an error for a failed read transfer.
func NewReadError(op string, detail byte, cause error) *Error {
	return &Error{
		Kind:    KindReadError,
		Op:      op,
		Code:    detail,
		Message: "read failed",
		Cause:   cause,
	}
}

// NewWriteError creates an error for a failed write transfer. detail carries
// the bridge's status1 sub-state byte.
func NewWriteError(op string, detail byte, cause error) *Error {
	return &Error{
		Kind:    KindWriteError,
		Op:      op,
		Code:    detail,
		Message: "write failed",
		Cause:   cause,
	}
}

// KindOf extracts the ErrorKind from an error chain. Returns 0 if no *Error
// is present.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsNotFound reports whether the error chain contains a NotFound driver error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsTimeout reports whether the error chain contains a read or write timeout.
func IsTimeout(err error) bool {
	k := KindOf(err)
	return k == KindReadTimeout || k == KindWriteTimeout
}

// errInvalidState is returned when an operation is attempted in a lifecycle
// state that does not permit it.
func errInvalidState(op string, s State) *Error {
	return &Error{
		Kind:    KindDeviceAccessError,
		Op:      op,
		Message: fmt.Sprintf("invalid device state %v", s),
	}
}
