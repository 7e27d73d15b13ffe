// Package smbus drives USB HID-to-SMBus bridge devices, turning the
// bridge's asynchronous issue/poll/fetch transport into atomic read and
// write register transactions with per-device serialization and events.
package smbus

// Bridge abstracts the HID transport's discovery and open primitives.
//
// A Bridge enumerates attached HID-to-SMBus converters and opens exclusive
// handles to them. The real implementation lives in the hidbridge package;
// MockBridge provides a scriptable stand-in for tests.
//
// Example:
//
//	bridge := hidbridge.New()
//	count, _ := bridge.Discover(smbus.DefaultVendorID, smbus.DefaultProductID)
type Bridge interface {
	// Discover returns the number of attached devices matching the given
	// vendor/product identifiers.
	Discover(vendorID, productID uint16) (uint32, Status)

	// GetString fetches an identity string for a not-yet-open device,
	// addressed by its discovery ordinal.
	GetString(ordinal uint32, vendorID, productID uint16, kind StringKind) (string, Status)

	// Open acquires an exclusive hardware handle for the device at the
	// given ordinal. The handle is valid until Close.
	Open(ordinal uint32, vendorID, productID uint16) (Handle, Status)
}

// Handle is an open, exclusively owned connection to one bridge device.
//
// All methods are single-shot primitives: issuing a request never blocks on
// the bus; completion is observed by polling GetReadResponse or
// GetTransferStatusResponse. A Handle must not be used after Close.
type Handle interface {
	// Close releases the hardware handle. A non-success status is advisory;
	// the handle is unusable either way.
	Close() Status

	// SetConfig applies the SMBus configuration to the device.
	SetConfig(cfg Config) Status

	// SetResponseTimeout bounds, in milliseconds, how long a single
	// response poll may block waiting for the device.
	SetResponseTimeout(ms uint32) Status

	// Reset issues a hardware reset. The handle remains valid.
	Reset() Status

	// ReadRequest issues a plain read of count bytes from a slave.
	ReadRequest(slave byte, count uint16) Status

	// AddressedReadRequest issues a read of count bytes preceded by a
	// 1–16 byte target (register) address write.
	AddressedReadRequest(slave byte, count uint16, target []byte) Status

	// ForceReadResponse instructs the bridge to make count bytes of read
	// data available for response polling.
	ForceReadResponse(count uint16) Status

	// GetReadResponse performs one response poll. The returned
	// TransferState reflects the transaction; data may be a partial chunk
	// of 0..MaxReadResponse bytes.
	GetReadResponse() (Status, TransferState, []byte)

	// WriteRequest issues a write of 1–MaxWriteRequest bytes to a slave.
	WriteRequest(slave byte, data []byte) Status

	// TransferStatusRequest asks the bridge to report transfer status.
	TransferStatusRequest() Status

	// GetTransferStatusResponse performs one status poll.
	GetTransferStatusResponse() (Status, TransferStatus)

	// CancelTransfer aborts an in-flight hardware transaction. The driver
	// never calls this automatically on cancellation; it is exposed for
	// callers that need to abort the bus itself.
	CancelTransfer() Status
}

// DeviceInfo describes a discovered device. Produced by Registry.Scan;
// read-only.
type DeviceInfo struct {
	Ordinal      uint32
	VendorID     uint16
	ProductID    uint16
	Serial       string
	Manufacturer string
	Product      string
}
