// Package devcfg wraps the single reconfiguration engine of the FPGA.
package devcfg

import (
	"errors"
	"fmt"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/slot"
	log "github.com/sirupsen/logrus"
)

// ErrRcfgDesync means the reconfiguration engine and the software view of
// it no longer agree.
var ErrRcfgDesync = errors.New("reconfiguration engine desync")

// State is the state of the reconfiguration engine.
type State int

const (
	Init State = iota
	Idle
	Programming
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Idle:
		return "IDLE"
	case Programming:
		return "PROG"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RcfgListener is told when a reconfiguration completes.
type RcfgListener interface {
	RcfgComplete(req *accel.Request) error
}

// Device is the reconfiguration engine. There is one per system.
type Device struct {
	drv    hw.ReconfigDriver
	logger log.FieldLogger

	listener RcfgListener
	state    State
	current  *accel.Request
}

// New creates a device in the Init state.
func New(drv hw.ReconfigDriver, logger log.FieldLogger) *Device {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Device{
		drv:    drv,
		logger: logger.WithField("component", "devcfg"),
	}
}

// Name identifies the device in logs.
func (d *Device) Name() string {
	return "devcfg"
}

// AttachScheduler sets who is told about completions and makes the device
// usable.
func (d *Device) AttachScheduler(l RcfgListener) {
	if d.state != Init {
		d.logger.Panicf("attach scheduler: invalid state %s", d.state)
	}

	d.listener = l
	d.state = Idle
}

// Attach connects the driver to the engine.
func (d *Device) Attach(engine timing.EventScheduler) {
	d.drv.Attach(engine, d)
}

// State returns the current state.
func (d *Device) State() State {
	return d.state
}

// IsIdle reports whether a reconfiguration can be started.
func (d *Device) IsIdle() bool {
	return d.state == Idle
}

// Current returns the request being reconfigured for, if any.
func (d *Device) Current() *accel.Request {
	return d.current
}

// StartRcfg loads the bitstream of the request's hardware task into s. The
// slot must already be isolated for reconfiguration.
func (d *Device) StartRcfg(req *accel.Request, s *slot.Slot) error {
	if d.state != Idle {
		d.logger.Panicf("start rcfg: invalid state %s", d.state)
	}

	t := req.HwTask()
	s.SetHwTask(t)

	if err := d.drv.StartRcfg(t.Bitstream(s.Index())); err != nil {
		return fmt.Errorf("%w: start: %w", ErrRcfgDesync, err)
	}

	d.state = Programming
	d.current = req

	return nil
}

// ClearEvt clears the completion and returns how long the reconfiguration
// took. On a driver error the device stays Programming.
func (d *Device) ClearEvt() (time.Duration, error) {
	if d.state != Programming {
		d.logger.Panicf("clear event: invalid state %s", d.state)
	}

	elapsed, err := d.drv.AfterRcfg()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRcfgDesync, err)
	}

	d.state = Idle
	d.current = nil

	return elapsed, nil
}

// Handle receives completions from the driver.
func (d *Device) Handle(event any) error {
	switch event.(type) {
	case *hw.RcfgDone:
		return d.complete()
	default:
		return fmt.Errorf("devcfg: unknown event type: %T", event)
	}
}

func (d *Device) complete() error {
	if d.state != Programming {
		return fmt.Errorf("%w: completion in state %s", ErrRcfgDesync, d.state)
	}

	return d.listener.RcfgComplete(d.current)
}

// Close releases the driver.
func (d *Device) Close() error {
	return d.drv.Close()
}
