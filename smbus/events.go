package smbus

import (
	"log"
	"sync"
)

// EventType identifies the kind of a device event.
type EventType int

const (
	// EventStateChanged reports a lifecycle state transition.
	EventStateChanged EventType = iota + 1
	// EventDataReceived reports a completed read transfer.
	EventDataReceived
	// EventDataSent reports a completed write transfer.
	EventDataSent
	// EventError reports a failed operation.
	EventError
	// EventTransferStatus reports one transfer status poll during a write.
	EventTransferStatus
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "stateChanged"
	case EventDataReceived:
		return "dataReceived"
	case EventDataSent:
		return "dataSent"
	case EventError:
		return "error"
	case EventTransferStatus:
		return "transferStatus"
	}
	return "unknown"
}

// Event is an immutable snapshot delivered to subscribers. Only the fields
// relevant to the Type are populated.
type Event struct {
	Type EventType

	// EventStateChanged
	Previous State
	Current  State

	// EventDataReceived / EventDataSent
	Slave     byte
	Data      []byte
	ByteCount int

	// EventError
	Err   error
	Code  byte
	Fatal bool

	// EventTransferStatus
	Transfer TransferStatus
}

// EventHandler receives events. Handlers run synchronously on the goroutine
// performing the triggering operation and must not block indefinitely.
type EventHandler func(Event)

// eventBus delivers events to subscribers in publication order. Delivery is
// synchronous: the triggering operation does not proceed until every current
// subscriber has been notified.
type eventBus struct {
	mu   sync.RWMutex
	next int
	subs map[int]EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[int]EventHandler)}
}

// subscribe registers a handler and returns a function that removes it.
func (b *eventBus) subscribe(h EventHandler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// publish notifies all current subscribers. A panicking subscriber is logged
// and skipped; there is no redelivery.
func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for i := 0; i < b.next; i++ {
		if h, ok := b.subs[i]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, ev)
	}
}

func deliver(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("smbus: event subscriber panic on %v event: %v", ev.Type, r)
		}
	}()
	h(ev)
}
