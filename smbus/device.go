package smbus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the lifecycle state of a device. Exactly one value holds per
// device at any instant.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateConfigured
	StateBusy
	StateError
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateConfigured:
		return "configured"
	case StateBusy:
		return "busy"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Device manages one bridge device: its lifecycle state, its exclusive
// hardware handle, and the transfer engine that drives it.
//
// All public operations serialize on a per-device gate: at most one logical
// operation is in flight at a time, and waiting callers can abandon the wait
// through their context. A context observed cancelled between primitive
// calls aborts the logical operation, but never an individual poll already
// blocking inside the bridge.
//
// Example:
//
//	dev := smbus.NewDevice(bridge, smbus.DefaultVendorID, smbus.DefaultProductID, 0)
//	if err := dev.Open(ctx); err != nil { ... }
//	defer dev.Close(context.Background())
type Device struct {
	bridge    Bridge
	vendorID  uint16
	productID uint16
	ordinal   uint32

	// gate admits a single in-flight logical operation.
	gate chan struct{}

	mu     sync.RWMutex
	state  State
	handle Handle
	info   DeviceInfo
	cfg    Config

	events *eventBus

	// attempts bounds the transfer retry loop; 1 disables retries.
	attempts   int
	retryDelay time.Duration
}

// NewDevice creates a Device for the bridge device at the given discovery
// ordinal. The device starts Closed; call Open before any other operation.
func NewDevice(bridge Bridge, vendorID, productID uint16, ordinal uint32) *Device {
	return &Device{
		bridge:     bridge,
		vendorID:   vendorID,
		productID:  productID,
		ordinal:    ordinal,
		gate:       make(chan struct{}, 1),
		state:      StateClosed,
		events:     newEventBus(),
		attempts:   DefaultTransferAttempts,
		retryDelay: DefaultRetryDelay,
	}
}

// SetTransferAttempts sets the driver-level attempt bound for read and write
// transfers. n < 1 is treated as 1; 1 disables retries.
func (d *Device) SetTransferAttempts(n int) {
	if n < 1 {
		n = 1
	}
	d.mu.Lock()
	d.attempts = n
	d.mu.Unlock()
}

// SetRetryDelay sets the fixed delay between transfer attempts.
func (d *Device) SetRetryDelay(delay time.Duration) {
	d.mu.Lock()
	d.retryDelay = delay
	d.mu.Unlock()
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Info returns the identity of the device, resolved during Open.
func (d *Device) Info() DeviceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Config returns the configuration last applied by Configure.
func (d *Device) Config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Subscribe registers an event handler and returns a function that removes
// it. Handlers are called synchronously, in event production order, on the
// goroutine performing the triggering operation; they must not block
// indefinitely and must not invoke device operations synchronously.
func (d *Device) Subscribe(h EventHandler) func() {
	return d.events.subscribe(h)
}

// acquire takes the per-device gate, or aborts if ctx is cancelled first.
func (d *Device) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case d.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Device) release() {
	<-d.gate
}

// transition moves the device to a new state and publishes a state-changed
// event if the state actually changed. Called only while holding the gate.
func (d *Device) transition(to State) {
	d.mu.Lock()
	prev := d.state
	d.state = to
	d.mu.Unlock()

	if prev != to {
		d.events.publish(Event{Type: EventStateChanged, Previous: prev, Current: to})
	}
}

func (d *Device) publishError(err error, fatal bool) {
	ev := Event{Type: EventError, Err: err, Fatal: fatal}
	if e, ok := err.(*Error); ok {
		ev.Code = e.Code
	}
	d.events.publish(ev)
}

// Open discovers the device and acquires its hardware handle.
//
// Open fails with a NotFound error if discovery yields no accessible device
// at the ordinal; the device then remains Closed. Calling Open on a device
// that is not Closed fails with an invalid-state error.
func (d *Device) Open(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	if s := d.State(); s != StateClosed {
		return errInvalidState("Open", s)
	}
	d.transition(StateOpening)

	count, st := d.bridge.Discover(d.vendorID, d.productID)
	if !st.OK() {
		d.transition(StateClosed)
		err := statusError("Open", st)
		d.publishError(err, true)
		return err
	}
	if count == 0 || d.ordinal >= count {
		d.transition(StateClosed)
		err := NewNotFoundError("Open")
		d.publishError(err, true)
		return err
	}

	serial, st := d.bridge.GetString(d.ordinal, d.vendorID, d.productID, StringSerial)
	if !st.OK() {
		log.Printf("smbus: device %d: could not read serial: %v", d.ordinal, st)
		serial = ""
	}

	handle, st := d.bridge.Open(d.ordinal, d.vendorID, d.productID)
	if !st.OK() {
		d.transition(StateClosed)
		err := statusError("Open", st)
		d.publishError(err, true)
		return err
	}

	d.mu.Lock()
	d.handle = handle
	d.info = DeviceInfo{
		Ordinal:   d.ordinal,
		VendorID:  d.vendorID,
		ProductID: d.productID,
		Serial:    serial,
	}
	d.mu.Unlock()

	d.transition(StateOpen)
	return nil
}

// Close releases the hardware handle and returns the device to Closed.
//
// Close is idempotent: on an already Closed (or Closing) device it is a
// no-op and emits no events. A non-success status from the underlying close
// primitive is logged as a warning, never returned; the device always
// reaches Closed.
func (d *Device) Close(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	if s := d.State(); s == StateClosed || s == StateClosing {
		return nil
	}
	d.transition(StateClosing)

	d.mu.Lock()
	handle := d.handle
	d.handle = nil
	d.mu.Unlock()

	if handle != nil {
		if st := handle.Close(); !st.OK() {
			log.Printf("smbus: device %d: close reported %v (ignored)", d.ordinal, st)
		}
	}

	d.transition(StateClosed)
	return nil
}

// Configure applies the SMBus configuration and the response timeout to the
// device as two bridge calls. If either call fails, the device transitions
// to Error and the failure is returned; recovery requires a full re-open.
func (d *Device) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	s := d.State()
	if s != StateOpen && s != StateConfigured {
		return errInvalidState("Configure", s)
	}

	d.mu.RLock()
	handle := d.handle
	d.mu.RUnlock()

	if st := handle.SetConfig(cfg); !st.OK() {
		d.transition(StateError)
		err := statusError("Configure", st)
		d.publishError(err, false)
		return err
	}
	if st := handle.SetResponseTimeout(uint32(cfg.ResponseTimeout.Milliseconds())); !st.OK() {
		d.transition(StateError)
		err := statusError("Configure", st)
		d.publishError(err, false)
		return err
	}

	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()

	d.transition(StateConfigured)
	return nil
}

// Reset sends a hardware reset. The logical state is unchanged on success.
func (d *Device) Reset(ctx context.Context) error {
	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	s := d.State()
	if s != StateOpen && s != StateConfigured {
		return errInvalidState("Reset", s)
	}

	d.mu.RLock()
	handle := d.handle
	d.mu.RUnlock()

	if err := statusError("Reset", handle.Reset()); err != nil {
		d.publishError(err, false)
		return err
	}
	return nil
}
