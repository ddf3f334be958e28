package nulldrv

import (
	"errors"
	"fmt"
	"time"

	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/sim/timing"
)

// DefaultThroughput is the bytes per second of the null reconfiguration
// engine, close to a PCAP port.
const DefaultThroughput = 400_000_000

// ReconfigDriver programs the fabric after a delay proportional to the
// bitstream size.
type ReconfigDriver struct {
	fabric     *Fabric
	throughput uint64

	engine  timing.EventScheduler
	handler timing.Handler

	current   *image
	startedAt time.Duration
	latency   time.Duration
	done      bool

	fault error
	count int
}

// NewReconfigDriver creates a reconfiguration driver for the fabric.
// A zero throughput selects DefaultThroughput.
func NewReconfigDriver(f *Fabric, throughput uint64) *ReconfigDriver {
	if throughput == 0 {
		throughput = DefaultThroughput
	}

	return &ReconfigDriver{
		fabric:     f,
		throughput: throughput,
	}
}

// Attach makes the driver deliver completions to h.
func (d *ReconfigDriver) Attach(engine timing.EventScheduler, h timing.Handler) {
	d.engine = engine
	d.handler = h
}

// StartRcfg starts programming the bitstream.
func (d *ReconfigDriver) StartRcfg(b hw.Bitstream) error {
	if d.current != nil {
		return errors.New("reconfiguration already in progress")
	}

	img, err := d.fabric.check(b)
	if err != nil {
		return err
	}

	d.current = &img
	d.done = false
	d.startedAt = d.engine.CurrentTime()
	d.latency = d.transferTime(b.Size)

	d.engine.Schedule(timing.ScheduledEvent{
		Event:   &hw.RcfgDone{},
		Time:    d.startedAt + d.latency,
		Handler: d,
	})

	return nil
}

func (d *ReconfigDriver) transferTime(size uint64) time.Duration {
	t := time.Duration(size * uint64(time.Second) / d.throughput)
	if t <= 0 {
		t = time.Microsecond
	}

	return t
}

// Handle receives the internal completion, programs the fabric and forwards
// the completion to the attached handler.
func (d *ReconfigDriver) Handle(event any) error {
	switch e := event.(type) {
	case *hw.RcfgDone:
		if d.current == nil {
			return nil
		}

		d.fabric.program(*d.current)
		d.done = true

		return d.handler.Handle(e)
	default:
		return fmt.Errorf("nulldrv: unknown event type: %T", event)
	}
}

// AfterRcfg clears the completion and returns the reconfiguration time.
func (d *ReconfigDriver) AfterRcfg() (time.Duration, error) {
	if d.fault != nil {
		err := d.fault
		d.fault = nil
		return 0, err
	}

	if d.current == nil || !d.done {
		return 0, errors.New("no reconfiguration completed")
	}

	d.current = nil
	d.count++

	return d.latency, nil
}

// InjectFault makes the next AfterRcfg fail with err.
func (d *ReconfigDriver) InjectFault(err error) {
	d.fault = err
}

// Count returns how many reconfigurations completed.
func (d *ReconfigDriver) Count() int {
	return d.count
}

// Close releases the driver.
func (d *ReconfigDriver) Close() error {
	d.current = nil
	return nil
}
