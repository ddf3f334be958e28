package timing

import (
	"context"
	"sync"
	"time"

	"github.com/fredsys/fred/sim/hooking"
	log "github.com/sirupsen/logrus"
)

// RealTimeEngine dispatches events against the wall clock. Schedule is safe
// to call from any goroutine, which is how device interrupts and socket
// readers hand their events to the single dispatch loop.
type RealTimeEngine struct {
	*hooking.HookableBase
	handlers *handlerRegistry

	start time.Time

	queueLock sync.Mutex
	queue     twoLevelQueue
	wake      chan struct{}

	gate pauseGate

	singleRunLock sync.Mutex
}

// NewRealTimeEngine creates a RealTimeEngine whose clock starts now.
func NewRealTimeEngine(logger log.FieldLogger) *RealTimeEngine {
	return &RealTimeEngine{
		HookableBase: hooking.NewHookableBase(),
		handlers:     newHandlerRegistry(logger),
		start:        time.Now(),
		queue:        newTwoLevelQueue(),
		wake:         make(chan struct{}, 1),
	}
}

// RegisterHandler registers a handler with the engine.
func (e *RealTimeEngine) RegisterHandler(
	h Handler,
	priority Priority,
	ownership Ownership,
) uint64 {
	return e.handlers.register(h, priority, ownership)
}

// CurrentTime returns the time elapsed since the engine was created.
func (e *RealTimeEngine) CurrentTime() time.Duration {
	return time.Since(e.start)
}

// Schedule queues an event. Events in the past are handled as soon as
// possible.
func (e *RealTimeEngine) Schedule(evt ScheduledEvent) {
	if e.handlers.isSecondary(evt.Handler) {
		evt.IsSecondary = true
	}

	e.queueLock.Lock()
	e.queue.Push(evt)
	e.queueLock.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run dispatches events until the context is done or a handler reports a
// fatal error. The owned handlers are closed before Run returns. A cancelled
// context is a clean stop and returns nil.
func (e *RealTimeEngine) Run(ctx context.Context) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()
	defer e.Shutdown()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		evt, wait, resume := e.nextDue()
		if resume != nil {
			if !waitResume(ctx, resume) {
				return nil
			}
			continue
		}

		if evt == nil {
			if !e.sleep(ctx, timer, wait) {
				return nil
			}
			continue
		}

		if ctx.Err() != nil {
			return nil
		}

		if err := e.dispatch(&evt.ScheduledEvent); err != nil {
			return err
		}
	}
}

// nextDue pops the next event if it is due. Otherwise it reports how long to
// wait, with a negative wait meaning there is nothing queued. While the
// engine is paused nothing is popped and the resume channel is returned, so
// no event scheduled after Pause returns is dispatched before Continue.
func (e *RealTimeEngine) nextDue() (
	evt *queuedEvent,
	wait time.Duration,
	resume <-chan struct{},
) {
	resume = e.gate.whileRunning(func() {
		e.queueLock.Lock()
		defer e.queueLock.Unlock()

		next := e.queue.Peek()
		if next == nil {
			wait = -1
			return
		}

		now := e.CurrentTime()
		if next.Time > now {
			wait = next.Time - now
			return
		}

		evt = e.queue.Pop()
	})

	return evt, wait, resume
}

func (e *RealTimeEngine) sleep(
	ctx context.Context,
	timer *time.Timer,
	wait time.Duration,
) bool {
	var timeout <-chan time.Time
	if wait >= 0 {
		timer.Reset(wait)
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return false
	case <-e.wake:
	case <-timeout:
		return true
	}

	if wait >= 0 && !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}

	return true
}

func (e *RealTimeEngine) dispatch(evt *ScheduledEvent) error {
	return dispatch(e, e.HookableBase, e.handlers, evt)
}

// Pause prevents the engine from dispatching more events until Continue is
// called. A paused engine still returns from Run when its context ends.
func (e *RealTimeEngine) Pause() {
	e.gate.pause()
}

// Continue resumes event processing after a Pause.
func (e *RealTimeEngine) Continue() {
	e.gate.cont()
}

// Shutdown closes the owned handlers that are still attached.
func (e *RealTimeEngine) Shutdown() {
	e.handlers.shutdown()
}
