package testserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/events"
)

// TimeoutError is returned by ListenFor when deadline elapses before a
// matching event arrives (§4.9: "an overrun deadline produces a typed
// timeout error").
type TimeoutError struct {
	EventName string
	Deadline  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting %s for event %q", e.Deadline, e.EventName)
}

// EventWatcher is a typed one-shot over the UI emitter (§4.9).
type EventWatcher struct {
	hub *events.Hub
}

func NewEventWatcher(hub *events.Hub) *EventWatcher {
	return &EventWatcher{hub: hub}
}

// ListenFor wires a listener into the UI emitter and blocks until the first
// matching event fires, deadline elapses, or ctx is cancelled.
func ListenFor[T any](ctx context.Context, w *EventWatcher, eventName string, deadline time.Duration) (T, error) {
	var zero T
	matched := make(chan events.Event, 1)

	var once sync.Once
	unsubscribe := w.hub.Subscribe(events.SubscriberFunc(func(evt events.Event) {
		if evt.Name != eventName {
			return
		}
		once.Do(func() { matched <- evt })
	}))
	defer unsubscribe()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case evt := <-matched:
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return zero, err
		}
		var out T
		if err := json.Unmarshal(payload, &out); err != nil {
			return zero, err
		}
		return out, nil
	case <-timer.C:
		return zero, &TimeoutError{EventName: eventName, Deadline: deadline}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
