package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// CyclicStats counts what a cyclic client did.
type CyclicStats struct {
	Submitted int
	Done      int
	Overruns  int
	Rejected  int
}

type submitEvent struct{}

// Cyclic is an in-process client that keeps one request in flight, cycling
// through its hardware tasks. A banned hardware task is skipped from then
// on. It stops after a given number of requests.
type Cyclic struct {
	name   string
	engine timing.EventScheduler
	sched  Pusher
	alloc  hw.BufferAllocator
	logger log.FieldLogger

	bindings []binding
	limit    int
	period   time.Duration

	req   *accel.Request
	next  int
	stats CyclicStats
}

// NewCyclic creates a cyclic client and allocates the buffers of its
// hardware tasks. A zero limit never stops. The period is the pause between
// a notification and the next submission.
func NewCyclic(
	name string,
	engine timing.EventScheduler,
	sched Pusher,
	alloc hw.BufferAllocator,
	tasks []*hwtask.HwTask,
	limit int,
	period time.Duration,
	logger log.FieldLogger,
) (*Cyclic, error) {
	if len(tasks) == 0 {
		return nil, errors.New("cyclic client needs at least one hw-task")
	}

	if logger == nil {
		logger = log.StandardLogger()
	}

	c := &Cyclic{
		name:   name,
		engine: engine,
		sched:  sched,
		alloc:  alloc,
		logger: logger.WithField("client", name),
		limit:  limit,
		period: period,
	}
	c.req = accel.NewRequest(c)

	for _, t := range tasks {
		b := binding{task: t}
		for _, size := range t.BufferSizes() {
			buf, err := alloc.Alloc(size)
			if err != nil {
				c.bindings = append(c.bindings, b)
				c.Close()
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			b.buffers = append(b.buffers, buf)
		}
		c.bindings = append(c.bindings, b)
	}

	return c, nil
}

// Name returns the name of the client.
func (c *Cyclic) Name() string {
	return c.name
}

// Stats returns the counters of the client.
func (c *Cyclic) Stats() CyclicStats {
	return c.stats
}

// Start schedules the first submission.
func (c *Cyclic) Start() {
	c.schedule(0)
}

func (c *Cyclic) schedule(delay time.Duration) {
	c.engine.Schedule(timing.ScheduledEvent{
		Event:   &submitEvent{},
		Time:    c.engine.CurrentTime() + delay,
		Handler: c,
	})
}

// Handle submits the next request.
func (c *Cyclic) Handle(event any) error {
	switch event.(type) {
	case *submitEvent:
		return c.submit()
	default:
		return fmt.Errorf("%s: unknown event type: %T", c.name, event)
	}
}

func (c *Cyclic) submit() error {
	if c.limit > 0 && c.stats.Submitted >= c.limit {
		c.logger.Debugf("done after %d requests", c.stats.Submitted)
		return nil
	}

	b := c.pick()
	if b == nil {
		c.logger.Warn("every hw-task is banned, stopping")
		return nil
	}

	args := make([]uintptr, len(b.buffers))
	for i, buf := range b.buffers {
		args[i] = buf.PhysAddr
	}

	c.req.Unbind()
	if err := c.req.Bind(b.task, args); err != nil {
		return err
	}

	c.stats.Submitted++

	return c.sched.PushAccelReq(c.req)
}

// pick returns the next hardware task that is not banned, in round robin.
func (c *Cyclic) pick() *binding {
	for range c.bindings {
		b := &c.bindings[c.next]
		c.next = (c.next + 1) % len(c.bindings)

		if !b.task.Banned() {
			return b
		}

		c.stats.Rejected++
	}

	return nil
}

// Notify counts the outcome and schedules the next submission.
func (c *Cyclic) Notify(req *accel.Request, msg accel.NotifyMsg) error {
	switch msg {
	case accel.NotifyDone:
		c.stats.Done++
	case accel.NotifyOverrun:
		c.stats.Overruns++
	}

	// Never push from here: the slot just freed belongs to the partition
	// queue first.
	c.schedule(c.period)

	return nil
}

// Close frees the buffers of the client.
func (c *Cyclic) Close() error {
	var errs []error
	for _, b := range c.bindings {
		for _, buf := range b.buffers {
			errs = append(errs, c.alloc.Free(buf))
		}
	}
	c.bindings = nil

	return errors.Join(errs...)
}
