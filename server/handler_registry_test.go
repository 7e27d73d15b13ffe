package server

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/voltbench/smbus-agent/protocol"
)

func noopHandler(ctx context.Context, conn *websocket.Conn, req protocol.WebSocketRequest) error {
	return nil
}

func TestHandlerRegistryHandle(t *testing.T) {
	r := NewHandlerRegistry()

	if err := r.Handle("readRegister", noopHandler); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !r.Has("readRegister") {
		t.Error("expected handler to be registered")
	}
	if _, ok := r.Get("readRegister"); !ok {
		t.Error("Get should find the registered handler")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get should not find an unregistered handler")
	}
}

func TestHandlerRegistryRejectsDuplicates(t *testing.T) {
	r := NewHandlerRegistry()
	if err := r.Handle("readRegister", noopHandler); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := r.Handle("readRegister", noopHandler); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestHandlerRegistryRejectsInvalidInput(t *testing.T) {
	r := NewHandlerRegistry()
	if err := r.Handle("readRegister", nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if err := r.Handle("", noopHandler); err == nil {
		t.Error("expected error for empty message type")
	}
}

func TestHandlerRegistryMessageTypes(t *testing.T) {
	r := NewHandlerRegistry()
	r.Handle("readRegister", noopHandler)
	r.Handle("writeRegister", noopHandler)

	types := r.MessageTypes()
	if len(types) != 2 {
		t.Fatalf("got %d message types, want 2", len(types))
	}
}

func TestHandlerRegistryLifecycle(t *testing.T) {
	r := NewHandlerRegistry()
	started := 0
	r.RegisterLifecycle(func(ctx context.Context) { started++ })
	r.RegisterLifecycle(func(ctx context.Context) { started++ })

	r.StartLifecycleHandlers(context.Background())
	if started != 2 {
		t.Errorf("started %d lifecycle handlers, want 2", started)
	}
}
