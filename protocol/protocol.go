// Package protocol provides SMBus agent message types for external tools.
// This package is designed to be importable without pulling in server dependencies.
package protocol

// WebSocket message type constants
const (
	WSTypeReading       = "reading"
	WSTypeDeviceStatus  = "deviceStatus"
	WSTypeReadRegister  = "readRegister"
	WSTypeReadResponse  = "readResponse"
	WSTypeWriteRegister = "writeRegister"
	WSTypeWriteResponse = "writeResponse"
	WSTypeError         = "error"
)

// Error codes used in error responses.
const (
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeTransferFailed = "TRANSFER_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}
