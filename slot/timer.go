package slot

import (
	"fmt"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// TimeoutListener is told when a computation overruns.
type TimeoutListener interface {
	SlotTimeout(req *accel.Request) error
}

// expireEvent fires when a timer runs out. Only the event of the current arm
// generation counts.
type expireEvent struct {
	generation uint64
}

// Timer is the watchdog of one slot.
type Timer struct {
	name     string
	engine   timing.EventScheduler
	listener TimeoutListener
	logger   log.FieldLogger

	armed      bool
	generation uint64
	armedAt    time.Duration
	duration   time.Duration
	req        *accel.Request
}

// NewTimer creates a disarmed timer.
func NewTimer(name string, engine timing.EventScheduler, logger log.FieldLogger) *Timer {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Timer{
		name:   name,
		engine: engine,
		logger: logger.WithField("timer", name),
	}
}

// Name returns the name of the timer.
func (t *Timer) Name() string {
	return t.name
}

// SetListener sets who is told about expiries.
func (t *Timer) SetListener(l TimeoutListener) {
	t.listener = l
}

// Armed reports whether the countdown is running.
func (t *Timer) Armed() bool {
	return t.armed
}

// Request returns the request the timer guards.
func (t *Timer) Request() *accel.Request {
	return t.req
}

// Arm starts a countdown of d for req.
func (t *Timer) Arm(d time.Duration, req *accel.Request) {
	if t.armed {
		t.logger.Panicf("arm: already armed for %s", t.req)
	}

	t.generation++
	t.armed = true
	t.armedAt = t.engine.CurrentTime()
	t.duration = d
	t.req = req

	t.engine.Schedule(timing.ScheduledEvent{
		Event:   &expireEvent{generation: t.generation},
		Time:    t.armedAt + d,
		Handler: t,
	})
}

// Disarm cancels the countdown and returns how long it ran.
func (t *Timer) Disarm() time.Duration {
	if !t.armed {
		t.logger.Panicf("disarm: not armed")
	}

	elapsed := t.engine.CurrentTime() - t.armedAt

	t.generation++
	t.armed = false
	t.req = nil

	return elapsed
}

// Handle receives expiries.
func (t *Timer) Handle(event any) error {
	switch e := event.(type) {
	case *expireEvent:
		return t.expire(e)
	default:
		return fmt.Errorf("timer %s: unknown event type: %T", t.name, event)
	}
}

func (t *Timer) expire(e *expireEvent) error {
	if !t.armed || e.generation != t.generation {
		return nil
	}

	req := t.req
	t.armed = false
	t.req = nil

	t.logger.Debugf("expired after %v", t.duration)

	if t.listener == nil {
		t.logger.Panicf("expiry without listener")
	}

	return t.listener.SlotTimeout(req)
}
