package smbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// openConfigured returns a device opened and configured against the given
// mock handle, with retries disabled and no inter-attempt delay.
func openConfigured(t *testing.T, handle *MockHandle) *Device {
	t.Helper()
	bridge := NewMockBridge(&MockEntry{Serial: "0001", Handle: handle})
	dev := NewDevice(bridge, DefaultVendorID, DefaultProductID, 0)
	dev.SetRetryDelay(0)
	if err := dev.Open(context.Background()); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := dev.Configure(context.Background(), DefaultConfig()); err != nil {
		t.Fatalf("Configure() failed: %v", err)
	}
	return dev
}

func countCalls(log []string, prefix string) int {
	n := 0
	for _, call := range log {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func TestDevice_ReadRegisterWord(t *testing.T) {
	// Register 0x8D of slave 0xC8 holds [0x40, 0x09].
	handle := NewMockHandle()
	handle.ReadData = []byte{0x40, 0x09}
	dev := openConfigured(t, handle)

	buf, err := dev.ReadRegister(context.Background(), 0xC8, []byte{0x8D}, 2)
	if err != nil {
		t.Fatalf("ReadRegister() failed: %v", err)
	}
	if !bytes.Equal(buf, []byte{0x40, 0x09}) {
		t.Fatalf("Expected [40 09], got %X", buf)
	}
	if !bytes.Equal(handle.LastTarget, []byte{0x8D}) {
		t.Errorf("Expected target address [8D], got %X", handle.LastTarget)
	}

	word, err := dev.ReadWord(context.Background(), 0xC8, 0x8D)
	if err != nil {
		t.Fatalf("ReadWord() failed: %v", err)
	}
	if word != 0x0940 {
		t.Errorf("Expected unsigned value 0x0940 (2368), got 0x%04X", word)
	}

	signed, err := dev.ReadWordSigned(context.Background(), 0xC8, 0x8D)
	if err != nil {
		t.Fatalf("ReadWordSigned() failed: %v", err)
	}
	if signed != 2368 {
		t.Errorf("Expected signed value 2368, got %d", signed)
	}
}

func TestDevice_ReadWordSigned_Negative(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadData = []byte{0xFF, 0xFF}
	dev := openConfigured(t, handle)

	signed, err := dev.ReadWordSigned(context.Background(), 0xC8, 0x8D)
	if err != nil {
		t.Fatalf("ReadWordSigned() failed: %v", err)
	}
	if signed != -1 {
		t.Errorf("Expected -1 from 0xFFFF, got %d", signed)
	}
}

func TestDevice_WriteWordRoundTrip(t *testing.T) {
	handle := NewMockHandle()
	dev := openConfigured(t, handle)

	const value = 0x4B00 // 600 A * 32 on the reference converter
	if err := dev.WriteWord(context.Background(), 0xC8, 0xEA, value); err != nil {
		t.Fatalf("WriteWord() failed: %v", err)
	}
	if !bytes.Equal(handle.LastWrite, []byte{0xEA, 0x00, 0x4B}) {
		t.Fatalf("Expected [EA 00 4B] on the wire, got %X", handle.LastWrite)
	}

	// Decoding the written value bytes yields the original value.
	decoded := uint16(handle.LastWrite[1]) | uint16(handle.LastWrite[2])<<8
	if decoded != value {
		t.Errorf("Round trip: expected 0x%04X, got 0x%04X", value, decoded)
	}
}

func TestDevice_ReadAccumulatesPartialChunks(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadPolls = []ReadPoll{
		{Status: StatusSuccess, State: TransferBusy, Data: nil},
		{Status: StatusSuccess, State: TransferBusy, Data: []byte{0x01, 0x02}},
		{Status: StatusSuccess, State: TransferComplete, Data: []byte{0x03, 0x04}},
	}
	dev := openConfigured(t, handle)

	buf, err := dev.Read(context.Background(), 0x16, 4)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !bytes.Equal(buf, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("Expected accumulated [01 02 03 04], got %X", buf)
	}
}

func TestDevice_ReadEmitsDataReceived(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadData = []byte{0xAA, 0xBB}
	dev := openConfigured(t, handle)
	events := collectEvents(dev)

	if _, err := dev.Read(context.Background(), 0x12, 2); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	var received []Event
	for _, ev := range *events {
		if ev.Type == EventDataReceived {
			received = append(received, ev)
		}
	}
	if len(received) != 1 {
		t.Fatalf("Expected exactly one data-received event, got %d", len(received))
	}
	if received[0].Slave != 0x12 || received[0].ByteCount != 2 {
		t.Errorf("Expected slave 0x12 count 2, got slave 0x%02X count %d",
			received[0].Slave, received[0].ByteCount)
	}
}

func TestDevice_WritePollsUntilComplete(t *testing.T) {
	// Polling yields Busy, Busy, Complete.
	handle := NewMockHandle()
	handle.TransferPolls = []TransferPoll{
		{Transfer: TransferStatus{State: TransferBusy, Detail: BusyAddressAcked}},
		{Transfer: TransferStatus{State: TransferBusy, Detail: BusyWriting, BytesTransferred: 1}},
		{Transfer: TransferStatus{State: TransferComplete, BytesTransferred: 3}},
	}
	dev := openConfigured(t, handle)
	events := collectEvents(dev)

	if err := dev.Write(context.Background(), 0xC8, []byte{0xEA, 0x00, 0x00}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	var statusEvents, sentEvents []Event
	for _, ev := range *events {
		switch ev.Type {
		case EventTransferStatus:
			statusEvents = append(statusEvents, ev)
		case EventDataSent:
			sentEvents = append(sentEvents, ev)
		}
	}
	if len(statusEvents) != 3 {
		t.Errorf("Expected 3 transfer-status events, got %d", len(statusEvents))
	}
	if len(sentEvents) != 1 {
		t.Fatalf("Expected exactly one data-sent event, got %d", len(sentEvents))
	}
	if sentEvents[0].ByteCount != 3 {
		t.Errorf("Expected ByteCount 3, got %d", sentEvents[0].ByteCount)
	}
	if sentEvents[0].Slave != 0xC8 {
		t.Errorf("Expected slave 0xC8, got 0x%02X", sentEvents[0].Slave)
	}
}

func TestDevice_WriteErrorCarriesSubStatus(t *testing.T) {
	handle := NewMockHandle()
	handle.TransferPolls = []TransferPoll{
		{Transfer: TransferStatus{State: TransferBusy, Detail: BusyAddressAcked}},
		{Transfer: TransferStatus{State: TransferError, Detail: BusyAddressNacked}},
	}
	dev := openConfigured(t, handle)

	err := dev.Write(context.Background(), 0xC8, []byte{0x01})
	if KindOf(err) != KindWriteError {
		t.Fatalf("Expected write error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("Expected *Error in chain")
	}
	if e.Code != BusyAddressNacked {
		t.Errorf("Expected sub-status 0x%02X, got 0x%02X", BusyAddressNacked, e.Code)
	}
}

func TestDevice_ReadErrorAfterRetries(t *testing.T) {
	// Every poll reports the error status: the operation must fail with a
	// read error after exactly the configured attempts, never with
	// partial data.
	handle := NewMockHandle()
	handle.ReadResponseFunc = func(poll int) (Status, TransferState, []byte) {
		return StatusSuccess, TransferError, nil
	}
	dev := openConfigured(t, handle)
	dev.SetTransferAttempts(3)

	buf, err := dev.Read(context.Background(), 0xC8, 2)
	if buf != nil {
		t.Errorf("Expected no data on failure, got %X", buf)
	}
	if KindOf(err) != KindReadError {
		t.Errorf("Expected read error, got %v", err)
	}

	if got := countCalls(handle.GetCallLog(), "ReadRequest"); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestDevice_ReadRetrySucceedsOnSecondAttempt(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadResponseFunc = func(poll int) (Status, TransferState, []byte) {
		if poll == 0 {
			return StatusReadTimedOut, TransferIdle, nil
		}
		return StatusSuccess, TransferComplete, []byte{0x40, 0x09}
	}
	dev := openConfigured(t, handle)
	dev.SetTransferAttempts(3)

	buf, err := dev.Read(context.Background(), 0xC8, 2)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if !bytes.Equal(buf, []byte{0x40, 0x09}) {
		t.Errorf("Expected [40 09], got %X", buf)
	}
	if got := countCalls(handle.GetCallLog(), "ReadRequest"); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestDevice_SingleAttemptByDefault(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadResponseFunc = func(poll int) (Status, TransferState, []byte) {
		return StatusReadTimedOut, TransferIdle, nil
	}
	dev := openConfigured(t, handle)

	_, err := dev.Read(context.Background(), 0xC8, 2)
	if KindOf(err) != KindReadTimeout {
		t.Errorf("Expected read timeout, got %v", err)
	}
	// DefaultTransferAttempts is 1: no retry happens unless configured.
	if got := countCalls(handle.GetCallLog(), "ReadRequest"); got != 1 {
		t.Errorf("Expected a single attempt by default, got %d", got)
	}
}

func TestDevice_CancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	handle := NewMockHandle()
	handle.ReadResponseFunc = func(poll int) (Status, TransferState, []byte) {
		// Cancel mid-transfer; the next inter-primitive check observes it.
		cancel()
		return StatusSuccess, TransferBusy, nil
	}
	dev := openConfigured(t, handle)
	dev.SetTransferAttempts(3)

	_, err := dev.Read(ctx, 0xC8, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if got := countCalls(handle.GetCallLog(), "ReadRequest"); got != 1 {
		t.Errorf("Expected cancellation to suppress retries, got %d attempts", got)
	}
}

func TestDevice_ReadValidation(t *testing.T) {
	handle := NewMockHandle()
	dev := openConfigured(t, handle)

	if _, err := dev.Read(context.Background(), 0xC8, 0); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for zero count, got %v", err)
	}
	if _, err := dev.Read(context.Background(), 0xC8, MaxReadResponse+1); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for oversized count, got %v", err)
	}
	longTarget := make([]byte, MaxTargetAddress+1)
	if _, err := dev.ReadRegister(context.Background(), 0xC8, longTarget, 2); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for oversized target, got %v", err)
	}
	if _, err := dev.ReadRegister(context.Background(), 0xC8, nil, 2); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for empty target, got %v", err)
	}

	// Local validation never touches the bridge.
	if got := len(handle.GetCallLog()); got > 4 { // open+configure calls only
		t.Errorf("Unexpected handle calls: %v", handle.GetCallLog())
	}
}

func TestDevice_WriteValidation(t *testing.T) {
	handle := NewMockHandle()
	dev := openConfigured(t, handle)

	if err := dev.Write(context.Background(), 0xC8, nil); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for empty buffer, got %v", err)
	}
	big := make([]byte, MaxWriteRequest+1)
	if err := dev.Write(context.Background(), 0xC8, big); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for oversized buffer, got %v", err)
	}
}

func TestDevice_TransferRequiresConfigured(t *testing.T) {
	bridge := NewMockBridge(&MockEntry{Serial: "0001"})
	dev := NewDevice(bridge, DefaultVendorID, DefaultProductID, 0)
	if err := dev.Open(context.Background()); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if _, err := dev.Read(context.Background(), 0xC8, 2); KindOf(err) != KindDeviceAccessError {
		t.Errorf("Expected invalid-state error before configure, got %v", err)
	}
}

func TestDevice_TransferReturnsToConfigured(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadData = []byte{0x01, 0x02}
	dev := openConfigured(t, handle)
	events := collectEvents(dev)

	if _, err := dev.Read(context.Background(), 0xC8, 2); err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if dev.State() != StateConfigured {
		t.Errorf("Expected configured after transfer, got %v", dev.State())
	}

	states := stateSequence(*events)
	want := []State{StateBusy, StateConfigured}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Errorf("Expected state sequence %v, got %v", want, states)
	}
}

func TestDevice_OneOperationInFlight(t *testing.T) {
	handle := NewMockHandle()
	handle.ReadData = []byte{0x01, 0x02}
	dev := openConfigured(t, handle)

	var mu sync.Mutex
	var states []State
	dev.Subscribe(func(ev Event) {
		if ev.Type == EventStateChanged {
			mu.Lock()
			states = append(states, ev.Current)
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = dev.Read(context.Background(), 0xC8, 2)
		}()
	}
	wg.Wait()

	// Every operation ran to completion alone: transitions strictly
	// alternate Busy/Configured with no interleaving.
	mu.Lock()
	defer mu.Unlock()
	if len(states) != 16 {
		t.Fatalf("Expected 16 transitions, got %d: %v", len(states), states)
	}
	for i, s := range states {
		want := StateBusy
		if i%2 == 1 {
			want = StateConfigured
		}
		if s != want {
			t.Fatalf("Transition %d: expected %v, got %v (sequence %v)", i, want, s, states)
		}
	}
}
