package smbus

import "fmt"

// Status is a raw status code returned by every bridge primitive.
type Status byte

const (
	StatusSuccess             Status = 0x00
	StatusDeviceNotFound      Status = 0x01
	StatusInvalidHandle       Status = 0x02
	StatusInvalidDeviceObject Status = 0x03
	StatusInvalidParameter    Status = 0x04
	StatusInvalidRequestLen   Status = 0x05
	StatusReadError           Status = 0x10
	StatusWriteError          Status = 0x11
	StatusReadTimedOut        Status = 0x12
	StatusWriteTimedOut       Status = 0x13
	StatusDeviceIOFailed      Status = 0x14
	StatusDeviceAccessError   Status = 0x15
	StatusDeviceNotSupported  Status = 0x16
	StatusUnknownError        Status = 0xFF
)

// OK reports whether the status is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDeviceNotFound:
		return "device not found"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusInvalidDeviceObject:
		return "invalid device object"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusInvalidRequestLen:
		return "invalid request length"
	case StatusReadError:
		return "read error"
	case StatusWriteError:
		return "write error"
	case StatusReadTimedOut:
		return "read timed out"
	case StatusWriteTimedOut:
		return "write timed out"
	case StatusDeviceIOFailed:
		return "device I/O failed"
	case StatusDeviceAccessError:
		return "device access error"
	case StatusDeviceNotSupported:
		return "device not supported"
	case StatusUnknownError:
		return "unknown error"
	}
	return fmt.Sprintf("status 0x%02X", byte(s))
}

// TransferState is the bridge-reported high-level state of an in-flight
// transaction (status0 in a transfer status response).
type TransferState byte

const (
	TransferIdle     TransferState = 0x00
	TransferBusy     TransferState = 0x01
	TransferComplete TransferState = 0x02
	TransferError    TransferState = 0x03
)

func (t TransferState) String() string {
	switch t {
	case TransferIdle:
		return "idle"
	case TransferBusy:
		return "busy"
	case TransferComplete:
		return "complete"
	case TransferError:
		return "error"
	}
	return fmt.Sprintf("transfer state 0x%02X", byte(t))
}

// Busy sub-states reported in status1 while status0 is TransferBusy.
const (
	BusyAddressAcked  byte = 0x00
	BusyAddressNacked byte = 0x01
	BusyReading       byte = 0x02
	BusyWriting       byte = 0x03
)

// TransferStatus is a snapshot of an in-flight transaction, derived from one
// transfer status poll.
type TransferStatus struct {
	State            TransferState // status0
	Detail           byte          // status1 sub-state
	Retries          uint16        // hardware-level retries so far
	BytesTransferred uint16
}

// StringKind selects which identity string to fetch for a not-yet-open device.
type StringKind byte

const (
	StringSerial       StringKind = 0x00
	StringManufacturer StringKind = 0x01
	StringProduct      StringKind = 0x02
)

// Fixed protocol size limits.
const (
	// MaxReadRequest is the largest aggregate byte count for a single read
	// request, enforced by the bridge.
	MaxReadRequest = 512

	// MaxReadResponse is the largest number of bytes returned by a single
	// read response poll.
	MaxReadResponse = 61

	// MaxWriteRequest is the largest payload for a single write request.
	MaxWriteRequest = 61

	// MaxTargetAddress is the largest target (register) address length in
	// bytes for an addressed read.
	MaxTargetAddress = 16
)

// Default USB identifiers for the CP2112 bridge.
const (
	DefaultVendorID  uint16 = 0x10C4
	DefaultProductID uint16 = 0xEA90
)
