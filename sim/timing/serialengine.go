package timing

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/fredsys/fred/sim/hooking"
	log "github.com/sirupsen/logrus"
)

// SerialEngine processes scheduled events sequentially in virtual time. Time
// jumps straight to the next event, so a run of hours of device activity
// takes milliseconds.
type SerialEngine struct {
	*hooking.HookableBase
	handlers *handlerRegistry

	timeLock sync.RWMutex
	now      time.Duration

	queueLock sync.Mutex
	queue     twoLevelQueue

	gate pauseGate

	singleRunLock sync.Mutex
}

// NewSerialEngine creates a SerialEngine that logs through the standard
// logger.
func NewSerialEngine() *SerialEngine {
	return NewSerialEngineWithLogger(log.StandardLogger())
}

// NewSerialEngineWithLogger creates a SerialEngine with the given logger.
func NewSerialEngineWithLogger(logger log.FieldLogger) *SerialEngine {
	return &SerialEngine{
		HookableBase: hooking.NewHookableBase(),
		handlers:     newHandlerRegistry(logger),
		queue:        newTwoLevelQueue(),
	}
}

// RegisterHandler registers a handler with the engine.
func (e *SerialEngine) RegisterHandler(
	h Handler,
	priority Priority,
	ownership Ownership,
) uint64 {
	return e.handlers.register(h, priority, ownership)
}

// Schedule registers an event to be handled in the future.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %v, now %v",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	if e.handlers.isSecondary(evt.Handler) {
		evt.IsSecondary = true
	}

	e.queueLock.Lock()
	e.queue.Push(evt)
	e.queueLock.Unlock()
}

func (e *SerialEngine) readNow() time.Duration {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()
	return t
}

func (e *SerialEngine) writeNow(t time.Duration) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes all scheduled events until the queue is empty or the context
// is done. A fatal handler error shuts the engine down and is returned.
func (e *SerialEngine) Run(ctx context.Context) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var evt *queuedEvent
		if resume := e.gate.whileRunning(func() {
			evt = e.nextEvent()
		}); resume != nil {
			if !waitResume(ctx, resume) {
				return ctx.Err()
			}
			continue
		}

		if evt == nil {
			return nil
		}

		e.writeNow(evt.Time)

		if err := e.dispatch(&evt.ScheduledEvent); err != nil {
			e.Shutdown()
			return err
		}
	}
}

// RunUntil processes events scheduled no later than the given time and then
// advances the clock to it.
func (e *SerialEngine) RunUntil(ctx context.Context, t time.Duration) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var evt *queuedEvent
		if resume := e.gate.whileRunning(func() {
			evt = e.popUntil(t)
		}); resume != nil {
			if !waitResume(ctx, resume) {
				return ctx.Err()
			}
			continue
		}

		if evt == nil {
			if e.readNow() < t {
				e.writeNow(t)
			}
			return nil
		}

		e.writeNow(evt.Time)

		if err := e.dispatch(&evt.ScheduledEvent); err != nil {
			e.Shutdown()
			return err
		}
	}
}

func (e *SerialEngine) popUntil(t time.Duration) *queuedEvent {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	next := e.queue.Peek()
	if next == nil || next.Time > t {
		return nil
	}

	return e.queue.Pop()
}

func (e *SerialEngine) nextEvent() *queuedEvent {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	evt := e.queue.Pop()
	if evt == nil {
		return nil
	}

	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot run event in the past, evt %s @ %v, now %v",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	return evt
}

func (e *SerialEngine) dispatch(evt *ScheduledEvent) error {
	return dispatch(e, e.HookableBase, e.handlers, evt)
}

// Pending returns the number of events waiting to be handled.
func (e *SerialEngine) Pending() int {
	e.queueLock.Lock()
	defer e.queueLock.Unlock()

	return e.queue.Len()
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.gate.pause()
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.gate.cont()
}

// Shutdown closes the owned handlers that are still attached.
func (e *SerialEngine) Shutdown() {
	e.handlers.shutdown()
}

// CurrentTime returns the time of the most recently handled event.
func (e *SerialEngine) CurrentTime() time.Duration {
	return e.readNow()
}
