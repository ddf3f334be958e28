// Package slot implements the reconfigurable slot state machine and the
// watchdog timer guarding each slot.
package slot

import (
	"errors"
	"fmt"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// State is the state of a slot.
type State int

// A slot starts Blank. Reserve moves an available slot (Blank or Idle) to
// Rsrv, from where it is either reconfigured (Rcfg, then Ready) or started
// right away when it already holds the hardware task.
const (
	Blank State = iota
	Idle
	Rsrv
	Rcfg
	Ready
	Exec
)

var stateNames = [...]string{"BLANK", "IDLE", "RSRV", "RCFG", "READY", "EXEC"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}

	return stateNames[s]
}

// CompletionListener is told when the accelerator of a slot completes.
type CompletionListener interface {
	SlotComplete(req *accel.Request) error
}

// Slot is one reconfigurable region. All state changes are made by the
// scheduler on the engine thread.
type Slot struct {
	name   string
	index  int
	drv    hw.SlotDriver
	dec    hw.Decoupler
	logger log.FieldLogger

	listener CompletionListener

	state   State
	hwTask  *hwtask.HwTask
	current *accel.Request
}

// New creates a blank slot.
func New(
	name string,
	index int,
	drv hw.SlotDriver,
	dec hw.Decoupler,
	logger log.FieldLogger,
) *Slot {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Slot{
		name:   name,
		index:  index,
		drv:    drv,
		dec:    dec,
		logger: logger.WithField("slot", name),
	}
}

// Name returns the device name of the slot.
func (s *Slot) Name() string {
	return s.name
}

// Index returns the position of the slot in its partition.
func (s *Slot) Index() int {
	return s.index
}

// State returns the current state.
func (s *Slot) State() State {
	return s.state
}

// HwTask returns the hardware task the slot is configured with. It is only
// meaningful from Rcfg on; a Blank slot holds nothing usable.
func (s *Slot) HwTask() *hwtask.HwTask {
	return s.hwTask
}

// Current returns the request being executed, if any.
func (s *Slot) Current() *accel.Request {
	return s.current
}

// SetListener sets who is told about compute completions.
func (s *Slot) SetListener(l CompletionListener) {
	s.listener = l
}

// Attach connects the accelerator driver to the engine.
func (s *Slot) Attach(engine timing.EventScheduler) {
	s.drv.Attach(engine, s)
}

// IsAvailable reports whether the slot can be reserved.
func (s *Slot) IsAvailable() bool {
	return s.state == Idle || s.state == Blank
}

// MatchHwTask reports whether the slot is idle and already holds t.
func (s *Slot) MatchHwTask(t *hwtask.HwTask) bool {
	if s.state != Idle || s.hwTask == nil {
		return false
	}

	return s.hwTask.ID() == t.ID()
}

// SetHwTask records the hardware task being loaded.
func (s *Slot) SetHwTask(t *hwtask.HwTask) {
	s.mustBeIn("set hw-task", Rcfg)
	s.hwTask = t
}

// CheckHwTaskConsistency reports whether the accelerator reports the id of
// the hardware task the slot believes it holds.
func (s *Slot) CheckHwTaskConsistency() bool {
	return s.hwTask != nil && s.drv.ID() == s.hwTask.ID()
}

// DriverID returns the id reported by the accelerator.
func (s *Slot) DriverID() uint32 {
	return s.drv.ID()
}

// Reserve claims an available slot.
func (s *Slot) Reserve() {
	s.mustBeIn("reserve", Idle, Blank)
	s.state = Rsrv
}

// PrepareForRcfg isolates the slot from the bus before it is programmed.
func (s *Slot) PrepareForRcfg() {
	s.mustBeIn("prepare for rcfg", Rsrv)

	s.dec.Decouple()
	s.drv.BeforeRcfg()
	s.state = Rcfg
}

// ReinitAfterRcfg reconnects a freshly programmed slot.
func (s *Slot) ReinitAfterRcfg() {
	s.mustBeIn("reinit after rcfg", Rcfg)

	s.state = Ready
	s.dec.Couple()
	s.drv.AfterRcfg()
}

// StartCompute starts the accelerator for the request. The slot must be
// Ready, or Rsrv when the reconfiguration was skipped. A driver error means
// the accelerator was already running, and the slot keeps its state.
func (s *Slot) StartCompute(req *accel.Request) error {
	s.mustBeIn("start compute", Ready, Rsrv)

	if err := s.drv.StartCompute(req.Args()); err != nil {
		return fmt.Errorf("slot %s: %w", s.name, err)
	}

	s.current = req
	s.state = Exec

	return nil
}

// ClearAfterCompute acknowledges a completion and leaves the slot idle,
// still holding its hardware task.
func (s *Slot) ClearAfterCompute() {
	s.mustBeIn("clear after compute", Exec)

	s.drv.AfterCompute()
	s.current = nil
	s.state = Idle
}

// DisableAfterTimeout cuts off an unresponsive accelerator. The slot becomes
// Blank so it is reprogrammed before being used again.
func (s *Slot) DisableAfterTimeout() {
	s.mustBeIn("disable after timeout", Exec)

	s.dec.Decouple()
	s.current = nil
	s.state = Blank
}

// Handle receives accelerator completions.
func (s *Slot) Handle(event any) error {
	switch e := event.(type) {
	case *hw.ComputeDone:
		return s.handleComputeDone(e)
	default:
		return fmt.Errorf("slot %s: unknown event type: %T", s.name, event)
	}
}

func (s *Slot) handleComputeDone(e *hw.ComputeDone) error {
	if e.Cancelled || s.state != Exec {
		s.logger.Debugf("dropping stale completion in state %s", s.state)
		return nil
	}

	if s.listener == nil {
		s.logger.Panicf("completion without listener")
	}

	return s.listener.SlotComplete(s.current)
}

// Close releases the drivers.
func (s *Slot) Close() error {
	return errors.Join(s.drv.Close(), s.dec.Close())
}

func (s *Slot) mustBeIn(op string, states ...State) {
	for _, st := range states {
		if s.state == st {
			return
		}
	}

	s.logger.Panicf("%s: invalid state %s", op, s.state)
}
