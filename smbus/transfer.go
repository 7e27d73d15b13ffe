package smbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Read performs a plain read of count bytes from a slave. It returns either
// exactly count bytes or an error, never a truncated buffer.
func (d *Device) Read(ctx context.Context, slave byte, count int) ([]byte, error) {
	return d.readTransfer(ctx, slave, nil, count)
}

// ReadRegister reads count bytes from a slave after addressing it with a
// 1–16 byte target (register) address.
func (d *Device) ReadRegister(ctx context.Context, slave byte, target []byte, count int) ([]byte, error) {
	if len(target) == 0 || len(target) > MaxTargetAddress {
		return nil, NewInvalidParameterError("Read", "target address length %d outside 1..%d", len(target), MaxTargetAddress)
	}
	return d.readTransfer(ctx, slave, target, count)
}

// Write writes 1–61 bytes to a slave, polling transfer status until the
// bridge reports completion. Each poll emits a transfer-status event.
func (d *Device) Write(ctx context.Context, slave byte, data []byte) error {
	if len(data) == 0 || len(data) > MaxWriteRequest {
		return NewInvalidParameterError("Write", "write length %d outside 1..%d", len(data), MaxWriteRequest)
	}

	if err := d.acquire(ctx); err != nil {
		return err
	}
	defer d.release()

	handle, err := d.beginTransfer("Write")
	if err != nil {
		return err
	}

	err = d.withRetry(ctx, func() error {
		return d.writeSequence(ctx, handle, slave, data)
	})
	d.endTransfer(err)

	if err != nil {
		d.publishError(err, false)
		return fmt.Errorf("write of %d bytes to 0x%02X failed: %w", len(data), slave, err)
	}

	d.events.publish(Event{
		Type:      EventDataSent,
		Slave:     slave,
		Data:      data,
		ByteCount: len(data),
	})
	return nil
}

// ReadWord reads a little-endian unsigned 16-bit value from a register.
func (d *Device) ReadWord(ctx context.Context, slave, register byte) (uint16, error) {
	buf, err := d.ReadRegister(ctx, slave, []byte{register}, 2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// ReadWordSigned reads the same two bytes as ReadWord and reinterprets them
// as a two's-complement signed value.
func (d *Device) ReadWordSigned(ctx context.Context, slave, register byte) (int16, error) {
	v, err := d.ReadWord(ctx, slave, register)
	if err != nil {
		return 0, err
	}
	return int16(v), nil
}

// WriteWord writes a register address byte followed by a little-endian
// 16-bit value.
func (d *Device) WriteWord(ctx context.Context, slave, register byte, value uint16) error {
	return d.Write(ctx, slave, []byte{register, byte(value), byte(value >> 8)})
}

func (d *Device) readTransfer(ctx context.Context, slave byte, target []byte, count int) ([]byte, error) {
	if count <= 0 || count > MaxReadResponse {
		return nil, NewInvalidParameterError("Read", "byte count %d outside 1..%d", count, MaxReadResponse)
	}

	if err := d.acquire(ctx); err != nil {
		return nil, err
	}
	defer d.release()

	handle, err := d.beginTransfer("Read")
	if err != nil {
		return nil, err
	}

	var data []byte
	err = d.withRetry(ctx, func() error {
		buf, seqErr := d.readSequence(ctx, handle, slave, target, count)
		if seqErr != nil {
			return seqErr
		}
		data = buf
		return nil
	})
	d.endTransfer(err)

	if err != nil {
		d.publishError(err, false)
		return nil, fmt.Errorf("read of %d bytes from 0x%02X failed: %w", count, slave, err)
	}

	d.events.publish(Event{
		Type:      EventDataReceived,
		Slave:     slave,
		Data:      data,
		ByteCount: len(data),
	})
	return data, nil
}

// beginTransfer checks that a transfer is legal and marks the device Busy.
// Called with the gate held.
func (d *Device) beginTransfer(op string) (Handle, error) {
	if s := d.State(); s != StateConfigured {
		return nil, errInvalidState(op, s)
	}
	d.mu.RLock()
	handle := d.handle
	d.mu.RUnlock()

	d.transition(StateBusy)
	return handle, nil
}

// endTransfer leaves Busy. Completed and bus-level failed transfers return
// to Configured; device-level failures (lost handle, I/O or access failure)
// park the device in Error until it is re-opened.
func (d *Device) endTransfer(err error) {
	switch KindOf(err) {
	case KindInvalidHandle, KindDeviceIOFailed, KindDeviceAccessError:
		d.transition(StateError)
	default:
		d.transition(StateConfigured)
	}
}

// readSequence runs one attempt of the full read protocol: issue the
// request, force the response, then poll until the requested count has
// accumulated. Partial chunks are accumulated, not discarded.
func (d *Device) readSequence(ctx context.Context, handle Handle, slave byte, target []byte, count int) ([]byte, error) {
	var st Status
	if len(target) > 0 {
		st = handle.AddressedReadRequest(slave, uint16(count), target)
	} else {
		st = handle.ReadRequest(slave, uint16(count))
	}
	if err := statusError("Read", st); err != nil {
		return nil, err
	}
	if err := statusError("Read", handle.ForceReadResponse(uint16(count))); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, count)
	for len(buf) < count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, ts, chunk := handle.GetReadResponse()
		if err := statusError("Read", st); err != nil {
			return nil, err
		}
		if ts == TransferError {
			return nil, NewReadError("Read", byte(ts), nil)
		}
		buf = append(buf, chunk...)
	}
	return buf[:count], nil
}

// writeSequence runs one attempt of the full write protocol: issue the
// request, then poll transfer status until Complete or Error. Every poll
// emits a transfer-status event for observability.
func (d *Device) writeSequence(ctx context.Context, handle Handle, slave byte, data []byte) error {
	if err := statusError("Write", handle.WriteRequest(slave, data)); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := statusError("Write", handle.TransferStatusRequest()); err != nil {
			return err
		}
		st, ts := handle.GetTransferStatusResponse()
		if err := statusError("Write", st); err != nil {
			return err
		}
		d.events.publish(Event{Type: EventTransferStatus, Transfer: ts})

		switch ts.State {
		case TransferComplete:
			return nil
		case TransferError:
			return NewWriteError("Write", ts.Detail, nil)
		}
	}
}

// withRetry wraps one full transfer sequence in the bounded retry loop:
// a fixed delay between attempts, re-attempting only on errors and never on
// cancellation. The last underlying error surfaces when attempts run out.
func (d *Device) withRetry(ctx context.Context, fn func() error) error {
	d.mu.RLock()
	attempts := d.attempts
	delay := d.retryDelay
	d.mu.RUnlock()
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts-1)),
		ctx,
	)
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
