// Package monitor polls telemetry registers of an SMBus power converter and
// publishes readings to consumers.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/voltbench/smbus-agent/smbus"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Sample is one register's value within a reading.
type Sample struct {
	Name  string
	Raw   int16
	Value float64
	Err   error // non-nil if this register could not be read
}

// Reading is an immutable snapshot of one poll cycle.
type Reading struct {
	Time    time.Time
	Slave   byte
	Samples []Sample
}

// Config configures a Monitor.
type Config struct {
	Device    *smbus.Device
	Slave     byte
	Interval  time.Duration
	Registers []Register
}

// Monitor periodically reads a register set from one device and broadcasts
// the readings. Reads go through the device's own operation gate, so a
// monitor coexists with other users of the same device.
type Monitor struct {
	cfg      Config
	readings chan Reading
	stopChan chan struct{}
	workerWg sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New creates a Monitor. The device must already be open and configured.
func New(cfg Config) (*Monitor, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("monitor: device cannot be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Slave == 0 {
		cfg.Slave = DefaultSlaveAddress
	}
	if len(cfg.Registers) == 0 {
		cfg.Registers = LVDC4816Registers()
	}
	return &Monitor{
		cfg:      cfg,
		readings: make(chan Reading, 1), // buffered so a slow consumer never stalls polling
		stopChan: make(chan struct{}),
	}, nil
}

// Readings returns the channel on which readings are delivered. When the
// consumer lags, the oldest undelivered reading is dropped.
func (m *Monitor) Readings() <-chan Reading {
	return m.readings
}

// Registers returns the monitored register set.
func (m *Monitor) Registers() []Register {
	regs := make([]Register, len(m.cfg.Registers))
	copy(regs, m.cfg.Registers)
	return regs
}

// Start begins polling in a separate goroutine.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.workerWg.Add(1)
	go m.worker()
}

// Stop shuts down the worker and waits for it to finish.
func (m *Monitor) Stop() {
	select {
	case <-m.stopChan:
		return // already stopping
	default:
		close(m.stopChan)
	}
	m.workerWg.Wait()
}

func (m *Monitor) worker() {
	defer m.workerWg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			log.Println("monitor: worker stopping")
			return
		case <-ticker.C:
			m.publish(m.Poll(context.Background()))
		}
	}
}

// Poll reads every configured register once and returns the snapshot.
// Registers that fail to read carry their error in the sample; one bad
// register does not abort the cycle.
func (m *Monitor) Poll(ctx context.Context) Reading {
	reading := Reading{
		Time:    time.Now(),
		Slave:   m.cfg.Slave,
		Samples: make([]Sample, 0, len(m.cfg.Registers)),
	}
	for _, reg := range m.cfg.Registers {
		sample := Sample{Name: reg.Name}
		raw, err := m.cfg.Device.ReadWordSigned(ctx, m.cfg.Slave, reg.Register)
		if err != nil {
			log.Printf("monitor: read %s (reg 0x%02X): %v", reg.Name, reg.Register, err)
			sample.Err = err
		} else {
			sample.Raw = raw
			if reg.Raw {
				sample.Value = float64(raw)
			} else {
				sample.Value = float64(raw)*reg.Scale + reg.Offset
			}
		}
		reading.Samples = append(reading.Samples, sample)
	}
	return reading
}

// publish delivers a reading, displacing the oldest undelivered one if the
// consumer is not keeping up.
func (m *Monitor) publish(r Reading) {
	for {
		select {
		case m.readings <- r:
			return
		default:
		}
		select {
		case <-m.readings:
		default:
		}
	}
}
