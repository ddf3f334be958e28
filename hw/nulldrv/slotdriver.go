package nulldrv

import (
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// SlotDriver is an accelerator that runs for the latency of the loaded
// hardware task.
type SlotDriver struct {
	name   string
	logger log.FieldLogger

	engine  timing.EventScheduler
	handler timing.Handler

	hwID    uint32
	profile ExecProfile

	running bool
	pending *hw.ComputeDone
	args    []uintptr
	starts  int
	closed  bool
}

// Name returns the device name of the slot.
func (d *SlotDriver) Name() string {
	return d.name
}

// ID returns the id of the loaded hardware task, or 0 when blank.
func (d *SlotDriver) ID() uint32 {
	return d.hwID
}

// Attach makes the driver deliver completions to h.
func (d *SlotDriver) Attach(engine timing.EventScheduler, h timing.Handler) {
	d.engine = engine
	d.handler = h
}

// BeforeRcfg drops any computation in progress.
func (d *SlotDriver) BeforeRcfg() {
	d.cancelPending()
	d.running = false
}

// AfterRcfg has nothing to re-enable on a null slot.
func (d *SlotDriver) AfterRcfg() {}

// StartCompute starts the accelerator with the given arguments.
func (d *SlotDriver) StartCompute(args []uintptr) error {
	if d.running {
		return hw.ErrAcceleratorBusy
	}

	d.running = true
	d.starts++
	d.args = append(d.args[:0], args...)

	if d.profile.Hang {
		d.logger.Debugf("%s: hw-task %d hangs", d.name, d.hwID)
		return nil
	}

	d.pending = &hw.ComputeDone{}
	d.engine.Schedule(timing.ScheduledEvent{
		Event:   d.pending,
		Time:    d.engine.CurrentTime() + d.profile.Latency,
		Handler: d.handler,
	})

	return nil
}

// AfterCompute acknowledges the completion.
func (d *SlotDriver) AfterCompute() {
	d.running = false
	d.pending = nil
}

// Args returns the arguments of the last computation.
func (d *SlotDriver) Args() []uintptr {
	return d.args
}

// Starts returns how many computations were started.
func (d *SlotDriver) Starts() int {
	return d.starts
}

// Close releases the driver.
func (d *SlotDriver) Close() error {
	d.cancelPending()
	d.closed = true
	return nil
}

func (d *SlotDriver) load(hwID uint32, p ExecProfile) {
	d.cancelPending()
	d.running = false
	d.hwID = hwID
	d.profile = p
}

func (d *SlotDriver) cancelPending() {
	if d.pending != nil {
		d.pending.Cancelled = true
		d.pending = nil
	}
}

// Decoupler records whether its slot is connected to the bus.
type Decoupler struct {
	name      string
	decoupled bool
}

// Decouple disconnects the slot.
func (d *Decoupler) Decouple() {
	d.decoupled = true
}

// Couple reconnects the slot.
func (d *Decoupler) Couple() {
	d.decoupled = false
}

// Coupled reports whether the slot is connected to the bus.
func (d *Decoupler) Coupled() bool {
	return !d.decoupled
}

// Close releases the decoupler.
func (d *Decoupler) Close() error {
	return nil
}
