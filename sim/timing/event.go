// Package timing is the single-threaded event dispatcher that drives the
// scheduler. Hardware completions, watchdog expiries and client messages
// all become events that are handled one at a time, to completion.
package timing

import (
	"errors"
	"time"
)

// Handler processes events of various types.
// Events are plain data structs (no interface required).
// Handlers use type switching to handle different event types:
//
//	func (h *MyHandler) Handle(event any) error {
//	    switch e := event.(type) {
//	    case *MyEvent:
//	        // handle MyEvent
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	    return nil
//	}
//
// Returning nil means the event was handled. Returning an error that wraps
// ErrDetach removes only this handler from the engine. Any other error is
// fatal and stops the engine.
type Handler interface {
	Handle(event any) error
}

// ErrDetach is returned by a handler that no longer wants to receive events.
var ErrDetach = errors.New("detach handler")

// Named is implemented by handlers that want a readable name in logs.
type Named interface {
	Name() string
}

// TimeTeller exposes the current engine time, measured from engine start.
type TimeTeller interface {
	CurrentTime() time.Duration
}

// EventScheduler schedules events in the timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// ScheduledEvent is the engine-facing wrapper for user-defined events.
type ScheduledEvent struct {
	// Event is the data payload to be delivered to the handler.
	Event any

	// Time is when the event should be processed.
	Time time.Duration

	// Handler is the component that will process this event.
	Handler Handler

	// IsSecondary indicates if this event should be processed after all
	// primary events at the same time.
	IsSecondary bool
}
