package server

import "github.com/voltbench/smbus-agent/buildinfo"

// mDNS service discovery constants
var (
	MDNSServiceType = "_smbus-agent._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// WebSocket message types for client-server communication
const (
	WSMessageTypeReading       = "reading"
	WSMessageTypeDeviceStatus  = "deviceStatus"
	WSMessageTypeReadRegister  = "readRegister"
	WSMessageTypeReadResponse  = "readResponse"
	WSMessageTypeWriteRegister = "writeRegister"
	WSMessageTypeWriteResponse = "writeResponse"
	WSMessageTypeError         = "error"
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, POST, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)
