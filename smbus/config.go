package smbus

import "time"

// Default configuration values, taken from the reference setup for the
// LVDC4816 converter bench.
const (
	DefaultBitRate          = 100000 // Hz
	DefaultAckAddress       = 0x02
	DefaultWriteTimeout     = 10 * time.Millisecond
	DefaultReadTimeout      = 10 * time.Millisecond
	DefaultResponseTimeout  = 100 * time.Millisecond
	DefaultTransferRetries  = 0 // hardware-level, distinct from driver attempts
	DefaultSCLLowTimeout    = true
	DefaultAutoReadRespond  = false
	DefaultTransferAttempts = 1 // driver-level; 1 means no retry
	DefaultRetryDelay       = 100 * time.Millisecond
)

// Config is the SMBus configuration applied to an open device. It is a value
// type: immutable once applied until the device is re-configured.
type Config struct {
	// BitRate is the SCL clock rate in Hz. Must be > 0.
	BitRate uint32

	// AckAddress is the 7-bit address the bridge itself acknowledges when
	// acting as a bus target.
	AckAddress byte

	// AutoReadRespond makes the bridge send read response reports without
	// an explicit force.
	AutoReadRespond bool

	// WriteTimeout and ReadTimeout bound a single bus transfer.
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// SCLLowTimeout resets the bus when SCL is held low too long.
	SCLLowTimeout bool

	// TransferRetries is the number of retries the bridge hardware itself
	// performs on a nacked transfer. 0 disables hardware retries.
	TransferRetries uint16

	// ResponseTimeout bounds how long one response poll may block.
	ResponseTimeout time.Duration
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		BitRate:         DefaultBitRate,
		AckAddress:      DefaultAckAddress,
		AutoReadRespond: DefaultAutoReadRespond,
		WriteTimeout:    DefaultWriteTimeout,
		ReadTimeout:     DefaultReadTimeout,
		SCLLowTimeout:   DefaultSCLLowTimeout,
		TransferRetries: DefaultTransferRetries,
		ResponseTimeout: DefaultResponseTimeout,
	}
}

// Validate checks the configuration for locally detectable problems.
func (c Config) Validate() error {
	if c.BitRate == 0 {
		return NewInvalidParameterError("Configure", "bit rate must be > 0")
	}
	if c.AckAddress > 0x7F {
		return NewInvalidParameterError("Configure", "ack address 0x%02X exceeds 7 bits", c.AckAddress)
	}
	if c.ResponseTimeout <= 0 {
		return NewInvalidParameterError("Configure", "response timeout must be > 0")
	}
	return nil
}
