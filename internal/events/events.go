// Package events implements the Domain Event Bus (C3) and the process-wide
// UI emitter it dispatches into. The bus is best-effort: dispatch failures
// are logged, never propagated back into the ledger path (§4.3).
package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event is the generic envelope streamed over /ws (§6): {event, payload}.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// TransactionCreated is the one domain event kind defined by the core (§4.3).
type TransactionCreated struct {
	TransactionId    string    `json:"transactionId"`
	SourceName       string    `json:"sourceName,omitempty"`
	DestinationName  string    `json:"destinationName"`
	Amount           int64     `json:"amount"`
	Fee              int64     `json:"fee"`
	Direction        string    `json:"direction"`
	ResultingBalance int64     `json:"resultingBalance"`
	Notes            any       `json:"notes,omitempty"`
}

const (
	EventNewUser         = "new_user"
	EventNewTransaction  = "new_transaction"
	EventSTKPush         = "stk_push"
	EventSandboxStatus   = "sandbox_status"
)

// Subscriber receives events in emission order (§5 ordering guarantee (iv)).
// Delivery across different subscribers is not ordered relative to each other.
type Subscriber interface {
	Notify(evt Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(evt Event)

func (f SubscriberFunc) Notify(evt Event) { f(evt) }

// Hub is the process-wide UI emitter: the single piece of mutable state
// named in §5 that every /ws connection and every test-harness event
// watcher (C9) subscribes to.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]Subscriber
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]Subscriber)}
}

// Subscribe registers a subscriber and returns an unsubscribe func.
func (h *Hub) Subscribe(sub Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Emit publishes an event to every current subscriber. It never blocks on a
// slow subscriber for long: each Notify call is expected to be non-blocking
// (the websocket transport buffers internally).
func (h *Hub) Emit(name string, payload any) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	evt := Event{Name: name, Payload: payload}
	for _, s := range subs {
		s.Notify(evt)
	}
}

// Bus is the Domain Event Bus (C3): ledger operations return DomainEvents
// rather than publish them directly, so the caller picks the dispatch point
// (§4.2: "Events are returned to the caller; they are not published inside
// the lock").
type Bus struct {
	hub    *Hub
	logger *zap.Logger
}

func NewBus(hub *Hub, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.L()
	}
	return &Bus{hub: hub, logger: logger}
}

// DomainEvent is anything the ledger can produce; today only
// TransactionCreated exists, but the type keeps Dispatch generic.
type DomainEvent struct {
	Name    string
	Payload any
}

func NewTransactionCreated(p TransactionCreated) DomainEvent {
	return DomainEvent{Name: EventNewTransaction, Payload: p}
}

// Dispatch serializes each event and hands it to the UI emitter. A
// marshaling failure is logged and skipped; it never blocks the caller or
// returns an error (§4.3).
func (b *Bus) Dispatch(ctx context.Context, evts []DomainEvent) {
	for _, e := range evts {
		if _, err := json.Marshal(e.Payload); err != nil {
			b.logger.Error("dropping unserializable domain event", zap.String("event", e.Name), zap.Error(err))
			continue
		}
		b.hub.Emit(e.Name, e.Payload)
	}
}
