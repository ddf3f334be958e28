package timing

import (
	"context"

	"github.com/fredsys/fred/sim/hooking"
)

// Priority is the class a handler is registered with. Events delivered to
// normal priority handlers yield to high priority ones scheduled at the same
// time.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
)

// Ownership tells the engine whether it is responsible for closing a
// handler once the handler is detached or the engine shuts down.
type Ownership int

const (
	NotOwned Ownership = iota
	Owned
)

// HookPosBeforeEvent is a hook position that triggers before handling an
// event.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent is a hook position that triggers after handling an event.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// HookPosDetach is triggered when a handler is detached. The item is the
// handler.
var HookPosDetach = &hooking.HookPos{Name: "Detach"}

// HookPosFatal is triggered when a handler reports a fatal error, before the
// engine shuts down. The item is the error.
var HookPosFatal = &hooking.HookPos{Name: "Fatal"}

// An Engine delivers scheduled events to their handlers, one at a time.
type Engine interface {
	hooking.Hookable
	EventScheduler

	// RegisterHandler registers a handler and returns its id.
	RegisterHandler(handler Handler, priority Priority, ownership Ownership) uint64

	// Run processes events until there is nothing left to do, the context
	// is done, or a handler reports a fatal error.
	Run(ctx context.Context) error

	// Pause stops event dispatching until Continue is called.
	Pause()

	// Continue resumes a paused engine.
	Continue()

	// Shutdown closes all the owned handlers that are still attached.
	Shutdown()
}
