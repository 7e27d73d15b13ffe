package smbus

import (
	"context"
	"log"
	"sync"
	"time"
)

// Registry discovers, opens, and tracks bridge devices.
//
// The registry's own lock covers only the ordinal→device map; device state
// is reached exclusively through each device's own gate, so no cross-device
// lock is ever held during a transfer.
//
// Example:
//
//	reg := smbus.NewRegistry(bridge, smbus.DefaultVendorID, smbus.DefaultProductID)
//	infos, _ := reg.Scan()
//	dev, _ := reg.Open(ctx, infos[0].Ordinal, nil)
type Registry struct {
	bridge    Bridge
	vendorID  uint16
	productID uint16

	mu      sync.Mutex
	devices map[uint32]*Device

	attempts   int
	retryDelay time.Duration

	// onRemoved, if set, is called after a device has been removed from
	// the registry (explicit close, Closed transition, or fatal error).
	onRemoved func(DeviceInfo)
}

// NewRegistry creates a Registry for devices matching the given identifiers.
func NewRegistry(bridge Bridge, vendorID, productID uint16) *Registry {
	return &Registry{
		bridge:     bridge,
		vendorID:   vendorID,
		productID:  productID,
		devices:    make(map[uint32]*Device),
		attempts:   DefaultTransferAttempts,
		retryDelay: DefaultRetryDelay,
	}
}

// SetTransferAttempts sets the transfer attempt bound applied to devices
// opened after this call.
func (r *Registry) SetTransferAttempts(n int) {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	r.attempts = n
	r.mu.Unlock()
}

// SetRetryDelay sets the inter-attempt delay applied to devices opened after
// this call.
func (r *Registry) SetRetryDelay(d time.Duration) {
	r.mu.Lock()
	r.retryDelay = d
	r.mu.Unlock()
}

// OnDeviceRemoved registers a notification callback for removed devices.
// Must be set before devices are opened.
func (r *Registry) OnDeviceRemoved(fn func(DeviceInfo)) {
	r.mu.Lock()
	r.onRemoved = fn
	r.mu.Unlock()
}

// Scan enumerates matching devices and resolves their identity strings.
// A device whose strings cannot be read is skipped, not fatal to the scan.
func (r *Registry) Scan() ([]DeviceInfo, error) {
	count, st := r.bridge.Discover(r.vendorID, r.productID)
	if !st.OK() {
		return nil, statusError("Scan", st)
	}

	infos := make([]DeviceInfo, 0, count)
	for ordinal := uint32(0); ordinal < count; ordinal++ {
		serial, st := r.bridge.GetString(ordinal, r.vendorID, r.productID, StringSerial)
		if !st.OK() {
			log.Printf("smbus: scan: skipping device %d: serial unreadable: %v", ordinal, st)
			continue
		}
		manufacturer, st := r.bridge.GetString(ordinal, r.vendorID, r.productID, StringManufacturer)
		if !st.OK() {
			log.Printf("smbus: scan: skipping device %d: manufacturer unreadable: %v", ordinal, st)
			continue
		}
		product, st := r.bridge.GetString(ordinal, r.vendorID, r.productID, StringProduct)
		if !st.OK() {
			log.Printf("smbus: scan: skipping device %d: product unreadable: %v", ordinal, st)
			continue
		}
		infos = append(infos, DeviceInfo{
			Ordinal:      ordinal,
			VendorID:     r.vendorID,
			ProductID:    r.productID,
			Serial:       serial,
			Manufacturer: manufacturer,
			Product:      product,
		})
	}
	return infos, nil
}

// Open opens the device at the given ordinal, applying cfg after a
// successful open if non-nil.
//
// Open is idempotent by ordinal: if the device is already held it is
// returned as-is. Racing callers converge on a single winning open; the
// loser's freshly opened handle is closed and discarded.
func (r *Registry) Open(ctx context.Context, ordinal uint32, cfg *Config) (*Device, error) {
	r.mu.Lock()
	if dev, ok := r.devices[ordinal]; ok {
		r.mu.Unlock()
		return dev, nil
	}
	attempts, delay := r.attempts, r.retryDelay
	r.mu.Unlock()

	dev := NewDevice(r.bridge, r.vendorID, r.productID, ordinal)
	dev.SetTransferAttempts(attempts)
	dev.SetRetryDelay(delay)

	if err := dev.Open(ctx); err != nil {
		return nil, err
	}
	if cfg != nil {
		if err := dev.Configure(ctx, *cfg); err != nil {
			dev.Close(context.Background())
			return nil, err
		}
	}

	r.mu.Lock()
	if existing, ok := r.devices[ordinal]; ok {
		// Lost the race: keep the winner, discard our handle.
		r.mu.Unlock()
		dev.Close(context.Background())
		return existing, nil
	}
	r.devices[ordinal] = dev
	r.mu.Unlock()

	r.watch(dev)
	return dev, nil
}

// OpenAll scans and opens every discovered device, best-effort: an open
// failure is recorded per ordinal and does not abort the rest.
func (r *Registry) OpenAll(ctx context.Context, cfg *Config) ([]*Device, map[uint32]error) {
	failed := make(map[uint32]error)

	infos, err := r.Scan()
	if err != nil {
		return nil, failed
	}

	var opened []*Device
	for _, info := range infos {
		dev, err := r.Open(ctx, info.Ordinal, cfg)
		if err != nil {
			log.Printf("smbus: open all: device %d (%s): %v", info.Ordinal, info.Serial, err)
			failed[info.Ordinal] = err
			continue
		}
		opened = append(opened, dev)
	}
	return opened, failed
}

// Close removes the device at the given ordinal from the registry, then
// closes it. The entry is removed before closing so a concurrent lookup
// never observes a half-closed device.
func (r *Registry) Close(ctx context.Context, ordinal uint32) error {
	r.mu.Lock()
	dev, ok := r.devices[ordinal]
	delete(r.devices, ordinal)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	err := dev.Close(ctx)
	r.notifyRemoved(dev.Info())
	return err
}

// CloseAll removes and closes every held device. Entries are collected
// first, then closed outside the registry lock.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	devices := make([]*Device, 0, len(r.devices))
	for _, dev := range r.devices {
		devices = append(devices, dev)
	}
	r.devices = make(map[uint32]*Device)
	r.mu.Unlock()

	for _, dev := range devices {
		if err := dev.Close(ctx); err != nil {
			log.Printf("smbus: close all: device %d: %v", dev.Info().Ordinal, err)
		}
		r.notifyRemoved(dev.Info())
	}
}

// Get returns the held device at the given ordinal, if any.
func (r *Registry) Get(ordinal uint32) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[ordinal]
	return dev, ok
}

// BySerial returns the held device with the given serial number, if any.
func (r *Registry) BySerial(serial string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dev := range r.devices {
		if dev.Info().Serial == serial {
			return dev, true
		}
	}
	return nil, false
}

// Count returns the number of devices currently held.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// watch subscribes to a device's events so that a Closed transition or a
// fatal error removes it from the registry. Removal runs asynchronously:
// events are delivered on the goroutine holding the device's gate.
func (r *Registry) watch(dev *Device) {
	ordinal := dev.Info().Ordinal
	var unsubscribe func()
	unsubscribe = dev.Subscribe(func(ev Event) {
		closed := ev.Type == EventStateChanged && ev.Current == StateClosed
		fatal := ev.Type == EventError && ev.Fatal
		if !closed && !fatal {
			return
		}
		unsubscribe()
		go r.remove(ordinal, dev, fatal)
	})
}

// remove drops a device after it closed or failed fatally. The entry is
// removed before the close attempt, mirroring Close.
func (r *Registry) remove(ordinal uint32, dev *Device, fatal bool) {
	r.mu.Lock()
	held, ok := r.devices[ordinal]
	if !ok || held != dev {
		r.mu.Unlock()
		return
	}
	delete(r.devices, ordinal)
	r.mu.Unlock()

	if fatal {
		if err := dev.Close(context.Background()); err != nil {
			log.Printf("smbus: removing device %d: close failed: %v", ordinal, err)
		}
	}
	r.notifyRemoved(dev.Info())
}

func (r *Registry) notifyRemoved(info DeviceInfo) {
	r.mu.Lock()
	fn := r.onRemoved
	r.mu.Unlock()
	if fn != nil {
		fn(info)
	}
}
