package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voltbench/smbus-agent/monitor"
	"github.com/voltbench/smbus-agent/protocol"
	"github.com/voltbench/smbus-agent/smbus"
)

// DeviceHandler handles all bridge device operations.
// It groups on-demand register access and telemetry broadcasting together.
type DeviceHandler struct {
	device *smbus.Device
	mon    *monitor.Monitor

	// statusCh decouples synchronous device events from client writes, so a
	// slow WebSocket client never stalls a transfer in progress.
	statusCh chan protocol.DeviceStatusPayload
}

// NewDeviceHandler creates a new device handler. mon may be nil when the
// agent runs without periodic polling.
func NewDeviceHandler(device *smbus.Device, mon *monitor.Monitor) *DeviceHandler {
	return &DeviceHandler{
		device:   device,
		mon:      mon,
		statusCh: make(chan protocol.DeviceStatusPayload, 8),
	}
}

// Register implements ServerHandler interface.
// It sets up message handlers and lifecycle in one place.
func (h *DeviceHandler) Register(server HandlerServer) {
	server.Handle(WSMessageTypeReadRegister, h.handleReadRegister)
	server.Handle(WSMessageTypeWriteRegister, h.handleWriteRegister)

	h.device.Subscribe(func(ev smbus.Event) {
		switch ev.Type {
		case smbus.EventStateChanged, smbus.EventError:
		default:
			return
		}
		select {
		case h.statusCh <- h.deviceStatus(ev):
		default:
			// Drop when the consumer lags; the next event carries
			// current state anyway.
		}
	})

	server.StartLifecycle(func(ctx context.Context) {
		go func() {
			readings := h.readings()
			for {
				select {
				case <-ctx.Done():
					return
				case r := <-readings:
					server.BroadcastReading(ReadingPayload(r))
				case status := <-h.statusCh:
					server.BroadcastDeviceStatus(status)
				}
			}
		}()
	})
}

func (h *DeviceHandler) readings() <-chan monitor.Reading {
	if h.mon == nil {
		return nil
	}
	return h.mon.Readings()
}

// deviceStatus builds the status payload for an event. Error events carry no
// state of their own, so the live device state is reported instead.
func (h *DeviceHandler) deviceStatus(ev smbus.Event) protocol.DeviceStatusPayload {
	state := ev.Current
	if ev.Type == smbus.EventError {
		state = h.device.State()
	}
	info := h.device.Info()
	status := protocol.DeviceStatusPayload{
		Connected: state != smbus.StateClosed && state != smbus.StateClosing,
		Serial:    info.Serial,
		Product:   info.Product,
		State:     state.String(),
	}
	if ev.Err != nil {
		status.Message = ev.Err.Error()
	}
	return status
}

// CurrentDeviceStatus reports the device's present state, for the initial
// message sent to a freshly connected client.
func (h *DeviceHandler) CurrentDeviceStatus() protocol.DeviceStatusPayload {
	info := h.device.Info()
	state := h.device.State()
	return protocol.DeviceStatusPayload{
		Connected: state != smbus.StateClosed && state != smbus.StateClosing,
		Serial:    info.Serial,
		Product:   info.Product,
		State:     state.String(),
	}
}

// ReadingPayload converts a monitor reading into its wire form.
func ReadingPayload(r monitor.Reading) protocol.ReadingPayload {
	payload := protocol.ReadingPayload{
		Time:    r.Time.Format(time.RFC3339),
		Slave:   r.Slave,
		Samples: make([]protocol.SamplePayload, 0, len(r.Samples)),
	}
	for _, s := range r.Samples {
		sp := protocol.SamplePayload{Name: s.Name, Raw: s.Raw, Value: s.Value}
		if s.Err != nil {
			sp.Error = s.Err.Error()
		}
		payload.Samples = append(payload.Samples, sp)
	}
	return payload
}

// handleReadRegister processes an on-demand register read from a client.
func (h *DeviceHandler) handleReadRegister(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	var readReq protocol.RegisterReadRequest
	if err := decodePayload(req.Payload, &readReq); err != nil {
		log.Printf("Failed to parse read request: %v", err)
		return h.sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "Failed to parse read request")
	}

	raw, err := h.device.ReadWordSigned(ctx, readReq.Slave, readReq.Register)
	if err != nil {
		log.Printf("Register read failed: %v", err)
		return h.sendError(conn, req.ID, protocol.ErrCodeTransferFailed, err.Error())
	}

	response := protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    WSMessageTypeReadResponse,
		Success: true,
		Payload: protocol.RegisterReadResponse{
			Slave:    readReq.Slave,
			Register: readReq.Register,
			Raw:      raw,
			Value:    uint16(raw),
		},
	}
	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send read response: %v", err)
		return err
	}
	return nil
}

// handleWriteRegister processes an on-demand register write from a client.
func (h *DeviceHandler) handleWriteRegister(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	var writeReq protocol.RegisterWriteRequest
	if err := decodePayload(req.Payload, &writeReq); err != nil {
		log.Printf("Failed to parse write request: %v", err)
		return h.sendError(conn, req.ID, protocol.ErrCodeInvalidRequest, "Failed to parse write request")
	}

	if err := h.device.WriteWord(ctx, writeReq.Slave, writeReq.Register, writeReq.Value); err != nil {
		log.Printf("Register write failed: %v", err)
		return h.sendError(conn, req.ID, protocol.ErrCodeTransferFailed, err.Error())
	}

	response := protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    WSMessageTypeWriteResponse,
		Success: true,
		Payload: protocol.RegisterWriteResponse{
			Slave:    writeReq.Slave,
			Register: writeReq.Register,
		},
	}
	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send write response: %v", err)
		return err
	}
	return nil
}

// sendError sends an error response to the WebSocket client.
func (h *DeviceHandler) sendError(conn *websocket.Conn, requestID string, errorCode string, message string) error {
	response := protocol.WebSocketResponse{
		ID:      requestID,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{
			"code": errorCode,
		},
	}

	return conn.WriteJSON(response)
}

// decodePayload round-trips a generic payload map into a typed request.
func decodePayload(payload map[string]any, v any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(payloadBytes, v)
}
