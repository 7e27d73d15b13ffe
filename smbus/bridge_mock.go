package smbus

import (
	"fmt"
	"sync"
)

// MockEntry describes one simulated attached device for MockBridge.
type MockEntry struct {
	Serial       string
	Manufacturer string
	Product      string

	// StringStatus, if non-success, is returned by GetString for this
	// device.
	StringStatus Status

	// OpenStatus, if non-success, is returned by Open for this device.
	OpenStatus Status

	// Handle is returned by Open. If nil, a fresh MockHandle is created
	// per Open call and recorded in the bridge's Handles slice.
	Handle *MockHandle
}

// MockBridge is a test implementation of Bridge that simulates the HID
// transport without hardware.
//
// Example:
//
//	bridge := NewMockBridge(&MockEntry{Serial: "0001"})
//	dev := NewDevice(bridge, DefaultVendorID, DefaultProductID, 0)
type MockBridge struct {
	// Entries are the simulated attached devices, in discovery order.
	Entries []*MockEntry

	// DiscoverStatus, if non-success, is returned by Discover.
	DiscoverStatus Status

	// CallLog tracks primitive calls for verification in tests.
	CallLog []string

	// Handles records every handle created for entries without a preset
	// Handle, in open order.
	Handles []*MockHandle

	mu sync.Mutex
}

// NewMockBridge creates a MockBridge simulating the given devices.
func NewMockBridge(entries ...*MockEntry) *MockBridge {
	return &MockBridge{Entries: entries}
}

func (b *MockBridge) logCall(call string) {
	b.mu.Lock()
	b.CallLog = append(b.CallLog, call)
	b.mu.Unlock()
}

// Discover simulates device enumeration.
func (b *MockBridge) Discover(vendorID, productID uint16) (uint32, Status) {
	b.logCall("Discover")
	if !b.DiscoverStatus.OK() {
		return 0, b.DiscoverStatus
	}
	return uint32(len(b.Entries)), StatusSuccess
}

// GetString simulates identity string retrieval.
func (b *MockBridge) GetString(ordinal uint32, vendorID, productID uint16, kind StringKind) (string, Status) {
	b.logCall(fmt.Sprintf("GetString(%d,%d)", ordinal, kind))
	if int(ordinal) >= len(b.Entries) {
		return "", StatusDeviceNotFound
	}
	entry := b.Entries[ordinal]
	if !entry.StringStatus.OK() {
		return "", entry.StringStatus
	}
	switch kind {
	case StringSerial:
		return entry.Serial, StatusSuccess
	case StringManufacturer:
		return entry.Manufacturer, StatusSuccess
	case StringProduct:
		return entry.Product, StatusSuccess
	}
	return "", StatusInvalidParameter
}

// Open simulates handle acquisition.
func (b *MockBridge) Open(ordinal uint32, vendorID, productID uint16) (Handle, Status) {
	b.logCall(fmt.Sprintf("Open(%d)", ordinal))
	if int(ordinal) >= len(b.Entries) {
		return nil, StatusDeviceNotFound
	}
	entry := b.Entries[ordinal]
	if !entry.OpenStatus.OK() {
		return nil, entry.OpenStatus
	}
	h := entry.Handle
	if h == nil {
		h = NewMockHandle()
		b.mu.Lock()
		b.Handles = append(b.Handles, h)
		b.mu.Unlock()
	}
	return h, StatusSuccess
}

// GetCallLog returns a copy of the call log.
func (b *MockBridge) GetCallLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	logCopy := make([]string, len(b.CallLog))
	copy(logCopy, b.CallLog)
	return logCopy
}

// ReadPoll scripts one GetReadResponse poll.
type ReadPoll struct {
	Status Status
	State  TransferState
	Data   []byte
}

// TransferPoll scripts one GetTransferStatusResponse poll.
type TransferPoll struct {
	Status   Status
	Transfer TransferStatus
}

// MockHandle is a test implementation of Handle.
//
// By default a read returns the prefix of ReadData in a single chunk and a
// write completes on the first status poll. ReadPolls and TransferPolls, if
// set, script the polls instead; ReadResponseFunc overrides read polling
// entirely for custom behavior (e.g. per-attempt scripts in retry tests).
type MockHandle struct {
	// Primitive status overrides; zero value means success.
	CloseStatus           Status
	ConfigStatus          Status
	ResponseTimeoutStatus Status
	ResetStatus           Status
	ReadRequestStatus     Status
	ForceStatus           Status
	WriteRequestStatus    Status
	StatusRequestStatus   Status
	CancelStatus          Status

	// ReadData is what the simulated slave returns on reads.
	ReadData []byte

	// ReadPolls scripts successive GetReadResponse calls. When exhausted,
	// polls report a read timeout.
	ReadPolls []ReadPoll

	// ReadResponseFunc, if set, handles GetReadResponse; poll is the
	// zero-based call index.
	ReadResponseFunc func(poll int) (Status, TransferState, []byte)

	// TransferPolls scripts successive GetTransferStatusResponse calls.
	// When exhausted, the last entry repeats.
	TransferPolls []TransferPoll

	// Applied state, recorded for verification.
	Closed            bool
	AppliedConfig     Config
	ResponseTimeoutMS uint32
	LastSlave         byte
	LastReadCount     uint16
	LastTarget        []byte
	LastWrite         []byte

	// CallLog tracks primitive calls for verification in tests.
	CallLog []string

	readPoll     int
	transferPoll int
	pendingRead  []byte
	mu           sync.Mutex
}

// NewMockHandle creates a MockHandle with default (success) behavior.
func NewMockHandle() *MockHandle {
	return &MockHandle{}
}

func (h *MockHandle) logCall(call string) {
	h.CallLog = append(h.CallLog, call)
}

// Close simulates releasing the handle.
func (h *MockHandle) Close() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("Close")
	h.Closed = true
	return h.CloseStatus
}

// SetConfig records the applied configuration.
func (h *MockHandle) SetConfig(cfg Config) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("SetConfig")
	if h.ConfigStatus.OK() {
		h.AppliedConfig = cfg
	}
	return h.ConfigStatus
}

// SetResponseTimeout records the applied response timeout.
func (h *MockHandle) SetResponseTimeout(ms uint32) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("SetResponseTimeout")
	if h.ResponseTimeoutStatus.OK() {
		h.ResponseTimeoutMS = ms
	}
	return h.ResponseTimeoutStatus
}

// Reset simulates a hardware reset.
func (h *MockHandle) Reset() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("Reset")
	return h.ResetStatus
}

// ReadRequest records a plain read request.
func (h *MockHandle) ReadRequest(slave byte, count uint16) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall(fmt.Sprintf("ReadRequest(0x%02X,%d)", slave, count))
	h.LastSlave = slave
	h.LastReadCount = count
	h.LastTarget = nil
	return h.ReadRequestStatus
}

// AddressedReadRequest records an addressed read request.
func (h *MockHandle) AddressedReadRequest(slave byte, count uint16, target []byte) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall(fmt.Sprintf("AddressedReadRequest(0x%02X,%d,%X)", slave, count, target))
	h.LastSlave = slave
	h.LastReadCount = count
	h.LastTarget = append([]byte(nil), target...)
	return h.ReadRequestStatus
}

// ForceReadResponse stages up to count bytes of ReadData for polling.
func (h *MockHandle) ForceReadResponse(count uint16) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall(fmt.Sprintf("ForceReadResponse(%d)", count))
	if h.ForceStatus.OK() {
		n := int(count)
		if n > len(h.ReadData) {
			n = len(h.ReadData)
		}
		h.pendingRead = append([]byte(nil), h.ReadData[:n]...)
	}
	return h.ForceStatus
}

// GetReadResponse simulates one response poll.
func (h *MockHandle) GetReadResponse() (Status, TransferState, []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("GetReadResponse")
	poll := h.readPoll
	h.readPoll++

	if h.ReadResponseFunc != nil {
		return h.ReadResponseFunc(poll)
	}
	if h.ReadPolls != nil {
		if poll >= len(h.ReadPolls) {
			// Script exhausted without satisfying the read; report the
			// timeout the bridge would.
			return StatusReadTimedOut, TransferIdle, nil
		}
		p := h.ReadPolls[poll]
		return p.Status, p.State, p.Data
	}

	if len(h.pendingRead) == 0 {
		return StatusReadTimedOut, TransferIdle, nil
	}
	data := h.pendingRead
	if len(data) > MaxReadResponse {
		data = data[:MaxReadResponse]
	}
	h.pendingRead = h.pendingRead[len(data):]
	return StatusSuccess, TransferComplete, data
}

// WriteRequest records a write request.
func (h *MockHandle) WriteRequest(slave byte, data []byte) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall(fmt.Sprintf("WriteRequest(0x%02X,%d)", slave, len(data)))
	h.LastSlave = slave
	h.LastWrite = append([]byte(nil), data...)
	return h.WriteRequestStatus
}

// TransferStatusRequest simulates a transfer status request.
func (h *MockHandle) TransferStatusRequest() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("TransferStatusRequest")
	return h.StatusRequestStatus
}

// GetTransferStatusResponse simulates one status poll.
func (h *MockHandle) GetTransferStatusResponse() (Status, TransferStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("GetTransferStatusResponse")
	poll := h.transferPoll
	h.transferPoll++

	if len(h.TransferPolls) == 0 {
		return StatusSuccess, TransferStatus{
			State:            TransferComplete,
			BytesTransferred: uint16(len(h.LastWrite)),
		}
	}
	if poll >= len(h.TransferPolls) {
		poll = len(h.TransferPolls) - 1
	}
	p := h.TransferPolls[poll]
	return p.Status, p.Transfer
}

// CancelTransfer simulates aborting an in-flight transaction.
func (h *MockHandle) CancelTransfer() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logCall("CancelTransfer")
	return h.CancelStatus
}

// GetCallLog returns a copy of the call log.
func (h *MockHandle) GetCallLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	logCopy := make([]string, len(h.CallLog))
	copy(logCopy, h.CallLog)
	return logCopy
}

// ResetPolls rewinds the scripted poll indexes.
func (h *MockHandle) ResetPolls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readPoll = 0
	h.transferPoll = 0
}
