package protocol

// DeviceStatusPayload is the payload for device status updates.
type DeviceStatusPayload struct {
	Connected bool   `json:"connected"`
	Serial    string `json:"serial,omitempty"`
	Product   string `json:"product,omitempty"`
	State     string `json:"state"`
	Message   string `json:"message,omitempty"`
}

// SamplePayload is one register's value within a reading broadcast.
type SamplePayload struct {
	Name  string  `json:"name"`
	Raw   int16   `json:"raw"`
	Value float64 `json:"value"`
	Error string  `json:"error,omitempty"`
}

// ReadingPayload is the payload broadcast on every poll cycle.
type ReadingPayload struct {
	Time    string          `json:"time"` // RFC3339 format
	Slave   byte            `json:"slave"`
	Samples []SamplePayload `json:"samples"`
}

// RegisterReadRequest asks the agent to read one 16-bit register on demand.
type RegisterReadRequest struct {
	Slave    byte `json:"slave"`
	Register byte `json:"register"`
}

// RegisterReadResponse carries the result of an on-demand register read.
type RegisterReadResponse struct {
	Slave    byte   `json:"slave"`
	Register byte   `json:"register"`
	Raw      int16  `json:"raw"`
	Value    uint16 `json:"value"`
}

// RegisterWriteRequest asks the agent to write one 16-bit register.
type RegisterWriteRequest struct {
	Slave    byte   `json:"slave"`
	Register byte   `json:"register"`
	Value    uint16 `json:"value"`
}

// RegisterWriteResponse carries the result of an on-demand register write.
type RegisterWriteResponse struct {
	Slave    byte `json:"slave"`
	Register byte `json:"register"`
}
