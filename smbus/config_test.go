package smbus

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BitRate != 100000 {
		t.Errorf("Expected 100 kHz default bit rate, got %d", cfg.BitRate)
	}
	if cfg.AckAddress != 0x02 {
		t.Errorf("Expected ack address 0x02, got 0x%02X", cfg.AckAddress)
	}
	if cfg.AutoReadRespond {
		t.Error("Expected auto read respond off by default")
	}
	if !cfg.SCLLowTimeout {
		t.Error("Expected SCL low timeout on by default")
	}
	if cfg.ResponseTimeout != 100*time.Millisecond {
		t.Errorf("Expected 100ms response timeout, got %v", cfg.ResponseTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BitRate = 0
	if err := cfg.Validate(); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for zero bit rate, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.AckAddress = 0x80
	if err := cfg.Validate(); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for 8-bit ack address, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.ResponseTimeout = 0
	if err := cfg.Validate(); KindOf(err) != KindInvalidParameter {
		t.Errorf("Expected invalid parameter for zero response timeout, got %v", err)
	}
}
