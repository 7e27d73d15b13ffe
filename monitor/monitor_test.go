package monitor

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voltbench/smbus-agent/smbus"
)

// newTestDevice returns a configured device backed by the given handle.
func newTestDevice(t *testing.T, handle *smbus.MockHandle) *smbus.Device {
	t.Helper()
	bridge := smbus.NewMockBridge(&smbus.MockEntry{Serial: "0001", Handle: handle})
	dev := smbus.NewDevice(bridge, smbus.DefaultVendorID, smbus.DefaultProductID, 0)
	dev.SetRetryDelay(0)
	ctx := context.Background()
	if err := dev.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := dev.Configure(ctx, smbus.DefaultConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	t.Cleanup(func() { dev.Close(context.Background()) })
	return dev
}

// registerValues makes the handle answer each addressed read with the word
// scripted for that register.
func registerValues(handle *smbus.MockHandle, values map[byte]int16) {
	handle.ReadResponseFunc = func(poll int) (smbus.Status, smbus.TransferState, []byte) {
		if len(handle.LastTarget) != 1 {
			return smbus.StatusInvalidParameter, smbus.TransferError, nil
		}
		v, ok := values[handle.LastTarget[0]]
		if !ok {
			return smbus.StatusSuccess, smbus.TransferError, nil
		}
		return smbus.StatusSuccess, smbus.TransferComplete, []byte{byte(v), byte(v >> 8)}
	}
}

func TestPollScalesRegisters(t *testing.T) {
	handle := smbus.NewMockHandle()
	registerValues(handle, map[byte]int16{
		0x88: 2368, // 74.00 at 1/32
		0x8D: 2080, // 25.00 at 1/32 with -40 offset
		0x79: 513,  // raw status word
	})
	dev := newTestDevice(t, handle)

	m, err := New(Config{
		Device: dev,
		Slave:  0xC8,
		Registers: []Register{
			{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32},
			{Name: "Temp1_C", Register: 0x8D, Scale: 1.0 / 32, Offset: -40},
			{Name: "DUT_Status", Register: 0x79, Raw: true},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := m.Poll(context.Background())
	if len(r.Samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(r.Samples))
	}
	if math.Abs(r.Samples[0].Value-74.0) > 1e-9 {
		t.Errorf("HV_V = %v, want 74", r.Samples[0].Value)
	}
	if math.Abs(r.Samples[1].Value-25.0) > 1e-9 {
		t.Errorf("Temp1_C = %v, want 25", r.Samples[1].Value)
	}
	if r.Samples[2].Raw != 513 || r.Samples[2].Value != 513 {
		t.Errorf("DUT_Status = %d/%v, want 513", r.Samples[2].Raw, r.Samples[2].Value)
	}
	if r.Slave != 0xC8 {
		t.Errorf("slave = 0x%02X, want 0xC8", r.Slave)
	}
	if handle.LastSlave != 0xC8 {
		t.Errorf("handle saw slave 0x%02X, want 0xC8", handle.LastSlave)
	}
}

func TestPollContinuesAfterReadError(t *testing.T) {
	handle := smbus.NewMockHandle()
	// 0x8B is deliberately absent, so its read fails.
	registerValues(handle, map[byte]int16{0x88: 64})
	dev := newTestDevice(t, handle)

	m, err := New(Config{
		Device: dev,
		Registers: []Register{
			{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32},
			{Name: "LV_V", Register: 0x8B, Scale: 1.0 / 32},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := m.Poll(context.Background())
	if r.Samples[0].Err != nil {
		t.Errorf("HV_V failed unexpectedly: %v", r.Samples[0].Err)
	}
	if math.Abs(r.Samples[0].Value-2.0) > 1e-9 {
		t.Errorf("HV_V = %v, want 2", r.Samples[0].Value)
	}
	if r.Samples[1].Err == nil {
		t.Error("expected LV_V sample to carry an error")
	}
	if dev.State() != smbus.StateConfigured {
		t.Errorf("device state = %v, want Configured", dev.State())
	}
}

func TestStartStopDeliversReadings(t *testing.T) {
	handle := smbus.NewMockHandle()
	registerValues(handle, map[byte]int16{0x88: 32})
	dev := newTestDevice(t, handle)

	m, err := New(Config{
		Device:    dev,
		Interval:  5 * time.Millisecond,
		Registers: []Register{{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Start()
	defer m.Stop()

	select {
	case r := <-m.Readings():
		if len(r.Samples) != 1 || r.Samples[0].Name != "HV_V" {
			t.Fatalf("unexpected reading: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reading")
	}
	m.Stop()
	m.Stop() // second stop is a no-op
}

func TestDefaultRegisterSet(t *testing.T) {
	handle := smbus.NewMockHandle()
	dev := newTestDevice(t, handle)

	m, err := New(Config{Device: dev})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	regs := m.Registers()
	if len(regs) != 8 {
		t.Fatalf("got %d default registers, want 8", len(regs))
	}
	if regs[0].Name != "HV_V" || regs[0].Register != 0x88 {
		t.Errorf("unexpected first register: %+v", regs[0])
	}
}

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for nil device")
	}
}

func TestCSVSinkWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	regs := []Register{
		{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32},
		{Name: "DUT_Status", Register: 0x79, Raw: true},
	}
	reading := Reading{
		Time:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Slave: 0xC8,
		Samples: []Sample{
			{Name: "HV_V", Raw: 2368, Value: 74},
			{Name: "DUT_Status", Raw: 513, Value: 513},
		},
	}

	sink, err := NewCSVSink(path, regs)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	if err := sink.Write(reading); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and append; the header must not repeat.
	sink, err = NewCSVSink(path, regs)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	if err := sink.Write(reading); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus two readings", len(rows))
	}
	if rows[0][0] != "time" || rows[0][1] != "HV_V" || rows[0][2] != "DUT_Status" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[1][1] != "74.00" {
		t.Errorf("scaled cell = %q, want 74.00", rows[1][1])
	}
	if rows[1][2] != "513" {
		t.Errorf("raw cell = %q, want 513", rows[1][2])
	}
}

func TestCSVSinkFailedSampleEmptyCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	regs := []Register{{Name: "HV_V", Register: 0x88, Scale: 1.0 / 32}}
	sink, err := NewCSVSink(path, regs)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	reading := Reading{
		Time:    time.Now(),
		Samples: []Sample{{Name: "HV_V", Err: os.ErrDeadlineExceeded}},
	}
	if err := sink.Write(reading); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if rows[1][1] != "" {
		t.Errorf("failed sample cell = %q, want empty", rows[1][1])
	}
}
