// Package hidbridge implements the smbus bridge primitives for the Silicon
// Labs CP2112 HID-to-SMBus converter through the HIDAPI bindings of
// github.com/sstallion/go-hid.
package hidbridge

import (
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/voltbench/smbus-agent/smbus"
)

const defaultResponseTimeout = 100 * time.Millisecond

// Bridge implements smbus.Bridge over HIDAPI.
//
// Example:
//
//	bridge := hidbridge.New()
//	defer bridge.Exit()
//	reg := smbus.NewRegistry(bridge, smbus.DefaultVendorID, smbus.DefaultProductID)
type Bridge struct{}

// New initializes HIDAPI and returns a Bridge.
func New() *Bridge {
	hid.Init()
	return &Bridge{}
}

// Exit releases HIDAPI resources. Call once, after all handles are closed.
func (b *Bridge) Exit() {
	hid.Exit()
}

// enumerate lists matching HID devices in stable enumeration order.
func (b *Bridge) enumerate(vendorID, productID uint16) ([]*hid.DeviceInfo, error) {
	var infos []*hid.DeviceInfo
	err := hid.Enumerate(vendorID, productID, func(info *hid.DeviceInfo) error {
		infos = append(infos, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// Discover returns the number of attached matching devices.
func (b *Bridge) Discover(vendorID, productID uint16) (uint32, smbus.Status) {
	infos, err := b.enumerate(vendorID, productID)
	if err != nil {
		return 0, smbus.StatusDeviceIOFailed
	}
	return uint32(len(infos)), smbus.StatusSuccess
}

// GetString returns an identity string from HID enumeration data, without
// opening the device.
func (b *Bridge) GetString(ordinal uint32, vendorID, productID uint16, kind smbus.StringKind) (string, smbus.Status) {
	infos, err := b.enumerate(vendorID, productID)
	if err != nil {
		return "", smbus.StatusDeviceIOFailed
	}
	if int(ordinal) >= len(infos) {
		return "", smbus.StatusDeviceNotFound
	}
	info := infos[ordinal]
	switch kind {
	case smbus.StringSerial:
		return info.SerialNbr, smbus.StatusSuccess
	case smbus.StringManufacturer:
		return info.MfrStr, smbus.StatusSuccess
	case smbus.StringProduct:
		return info.ProductStr, smbus.StatusSuccess
	}
	return "", smbus.StatusInvalidParameter
}

// Open acquires an exclusive HID handle for the device at the given ordinal.
func (b *Bridge) Open(ordinal uint32, vendorID, productID uint16) (smbus.Handle, smbus.Status) {
	infos, err := b.enumerate(vendorID, productID)
	if err != nil {
		return nil, smbus.StatusDeviceIOFailed
	}
	if int(ordinal) >= len(infos) {
		return nil, smbus.StatusDeviceNotFound
	}
	dev, err := hid.OpenPath(infos[ordinal].Path)
	if err != nil {
		return nil, smbus.StatusDeviceAccessError
	}
	return &handle{dev: dev, timeout: defaultResponseTimeout}, smbus.StatusSuccess
}

// handle implements smbus.Handle for one open CP2112.
type handle struct {
	mu      sync.Mutex
	dev     *hid.Device
	timeout time.Duration
}

func (h *handle) Close() smbus.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return smbus.StatusInvalidHandle
	}
	err := h.dev.Close()
	h.dev = nil
	if err != nil {
		return smbus.StatusDeviceIOFailed
	}
	return smbus.StatusSuccess
}

func (h *handle) SetConfig(cfg smbus.Config) smbus.Status {
	return h.sendFeature(encodeConfig(cfg), smbus.StatusWriteError)
}

// SetResponseTimeout bounds the blocking wait inside a single response poll.
// The CP2112 has no such register; the timeout is applied host-side to the
// interrupt reads.
func (h *handle) SetResponseTimeout(ms uint32) smbus.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return smbus.StatusInvalidHandle
	}
	h.timeout = time.Duration(ms) * time.Millisecond
	return smbus.StatusSuccess
}

func (h *handle) Reset() smbus.Status {
	return h.sendFeature(encodeReset(), smbus.StatusDeviceIOFailed)
}

func (h *handle) ReadRequest(slave byte, count uint16) smbus.Status {
	return h.sendReport(encodeReadRequest(slave, count))
}

func (h *handle) AddressedReadRequest(slave byte, count uint16, target []byte) smbus.Status {
	if len(target) == 0 || len(target) > smbus.MaxTargetAddress {
		return smbus.StatusInvalidRequestLen
	}
	return h.sendReport(encodeAddressedReadRequest(slave, count, target))
}

func (h *handle) ForceReadResponse(count uint16) smbus.Status {
	return h.sendReport(encodeForceReadSend(count))
}

func (h *handle) GetReadResponse() (smbus.Status, smbus.TransferState, []byte) {
	report, st := h.readReport(reportReadResponse)
	if !st.OK() {
		return st, smbus.TransferIdle, nil
	}
	state, data, err := decodeReadResponse(report)
	if err != nil {
		return smbus.StatusReadError, smbus.TransferIdle, nil
	}
	return smbus.StatusSuccess, state, data
}

func (h *handle) WriteRequest(slave byte, data []byte) smbus.Status {
	if len(data) == 0 || len(data) > smbus.MaxWriteRequest {
		return smbus.StatusInvalidRequestLen
	}
	return h.sendReport(encodeDataWrite(slave, data))
}

func (h *handle) TransferStatusRequest() smbus.Status {
	return h.sendReport(encodeStatusRequest())
}

func (h *handle) GetTransferStatusResponse() (smbus.Status, smbus.TransferStatus) {
	report, st := h.readReport(reportStatusResponse)
	if !st.OK() {
		return st, smbus.TransferStatus{}
	}
	ts, err := decodeStatusResponse(report)
	if err != nil {
		return smbus.StatusReadError, smbus.TransferStatus{}
	}
	return smbus.StatusSuccess, ts
}

func (h *handle) CancelTransfer() smbus.Status {
	return h.sendReport(encodeCancelTransfer())
}

// sendReport writes one interrupt out report.
func (h *handle) sendReport(report []byte) smbus.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return smbus.StatusInvalidHandle
	}
	if _, err := h.dev.Write(report); err != nil {
		return smbus.StatusWriteError
	}
	return smbus.StatusSuccess
}

// sendFeature sends one feature report, mapping failure to failStatus.
func (h *handle) sendFeature(report []byte, failStatus smbus.Status) smbus.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return smbus.StatusInvalidHandle
	}
	if _, err := h.dev.SendFeatureReport(report); err != nil {
		return failStatus
	}
	return smbus.StatusSuccess
}

// readReport reads interrupt in reports until one with the wanted report id
// arrives or the response timeout budget is spent. Unrelated report ids
// (stale responses from an earlier, abandoned transaction) are discarded.
func (h *handle) readReport(wantID byte) ([]byte, smbus.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return nil, smbus.StatusInvalidHandle
	}

	deadline := time.Now().Add(h.timeout)
	buf := make([]byte, reportSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, smbus.StatusReadTimedOut
		}
		n, err := h.dev.ReadWithTimeout(buf, remaining)
		if err != nil {
			return nil, smbus.StatusReadError
		}
		if n == 0 {
			return nil, smbus.StatusReadTimedOut
		}
		if buf[0] == wantID {
			report := make([]byte, n)
			copy(report, buf[:n])
			return report, smbus.StatusSuccess
		}
	}
}
