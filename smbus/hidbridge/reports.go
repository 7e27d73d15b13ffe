package hidbridge

import (
	"fmt"

	"github.com/voltbench/smbus-agent/smbus"
)

// CP2112 HID report identifiers.
const (
	reportReset          = 0x01 // feature
	reportSMBusConfig    = 0x06 // feature
	reportReadRequest    = 0x10 // interrupt out
	reportAddressedRead  = 0x11 // interrupt out
	reportForceReadSend  = 0x12 // interrupt out
	reportReadResponse   = 0x13 // interrupt in
	reportDataWrite      = 0x14 // interrupt out
	reportStatusRequest  = 0x15 // interrupt out
	reportStatusResponse = 0x16 // interrupt in
	reportCancelTransfer = 0x17 // interrupt out
)

// reportSize is the interrupt report size used by the chip.
const reportSize = 64

// encodeReset builds the reset feature report.
func encodeReset() []byte {
	return []byte{reportReset, 0x01}
}

// encodeConfig builds the SMBus configuration feature report. The 7-bit ack
// address is shifted into the chip's 8-bit representation. Multi-byte fields
// are big-endian, matching the chip.
func encodeConfig(cfg smbus.Config) []byte {
	buf := make([]byte, 14)
	buf[0] = reportSMBusConfig
	putUint32(buf[1:5], cfg.BitRate)
	buf[5] = cfg.AckAddress << 1
	if cfg.AutoReadRespond {
		buf[6] = 1
	}
	putUint16(buf[7:9], uint16(cfg.WriteTimeout.Milliseconds()))
	putUint16(buf[9:11], uint16(cfg.ReadTimeout.Milliseconds()))
	if cfg.SCLLowTimeout {
		buf[11] = 1
	}
	putUint16(buf[12:14], cfg.TransferRetries)
	return buf
}

func encodeReadRequest(slave byte, count uint16) []byte {
	buf := make([]byte, 4)
	buf[0] = reportReadRequest
	buf[1] = slave
	putUint16(buf[2:4], count)
	return buf
}

func encodeAddressedReadRequest(slave byte, count uint16, target []byte) []byte {
	buf := make([]byte, 5+smbus.MaxTargetAddress)
	buf[0] = reportAddressedRead
	buf[1] = slave
	putUint16(buf[2:4], count)
	buf[4] = byte(len(target))
	copy(buf[5:], target)
	return buf
}

func encodeForceReadSend(count uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = reportForceReadSend
	putUint16(buf[1:3], count)
	return buf
}

func encodeDataWrite(slave byte, data []byte) []byte {
	buf := make([]byte, 3+smbus.MaxWriteRequest)
	buf[0] = reportDataWrite
	buf[1] = slave
	buf[2] = byte(len(data))
	copy(buf[3:], data)
	return buf
}

func encodeStatusRequest() []byte {
	return []byte{reportStatusRequest, 0x01}
}

func encodeCancelTransfer() []byte {
	return []byte{reportCancelTransfer, 0x01}
}

// decodeReadResponse parses a data read response report into the transfer
// state and the data chunk it carries.
func decodeReadResponse(report []byte) (smbus.TransferState, []byte, error) {
	if len(report) < 3 || report[0] != reportReadResponse {
		return 0, nil, fmt.Errorf("malformed read response report (% X)", report)
	}
	state := smbus.TransferState(report[1])
	n := int(report[2])
	if n > smbus.MaxReadResponse || 3+n > len(report) {
		return 0, nil, fmt.Errorf("read response length %d out of range", n)
	}
	data := make([]byte, n)
	copy(data, report[3:3+n])
	return state, data, nil
}

// decodeStatusResponse parses a transfer status response report.
func decodeStatusResponse(report []byte) (smbus.TransferStatus, error) {
	if len(report) < 7 || report[0] != reportStatusResponse {
		return smbus.TransferStatus{}, fmt.Errorf("malformed transfer status report (% X)", report)
	}
	return smbus.TransferStatus{
		State:            smbus.TransferState(report[1]),
		Detail:           report[2],
		Retries:          uint16(report[3])<<8 | uint16(report[4]),
		BytesTransferred: uint16(report[5])<<8 | uint16(report[6]),
	}, nil
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
