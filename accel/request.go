// Package accel holds the acceleration request a software client hands to
// the scheduler.
package accel

import (
	"fmt"
	"time"

	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/id"
)

// NotifyMsg tells a client how its request ended.
type NotifyMsg int

const (
	NotifyDone NotifyMsg = iota
	NotifyOverrun
)

func (m NotifyMsg) String() string {
	switch m {
	case NotifyDone:
		return "done"
	case NotifyOverrun:
		return "overrun"
	default:
		return fmt.Sprintf("NotifyMsg(%d)", int(m))
	}
}

// A Notifier is told when a request completes or overruns. Errors are
// client-communication failures and never stop the scheduler.
type Notifier interface {
	Notify(req *Request, msg NotifyMsg) error
}

// NoSlot is the slot index of a request that holds no slot.
const NoSlot = -1

var requestIDs = id.NewXIDGenerator()

// Request asks for one execution of a hardware task. A client reuses the same
// request for all its executions and must not touch it between pushing it to
// the scheduler and being notified.
type Request struct {
	id       string
	notifier Notifier

	hwTask *hwtask.HwTask
	args   []uintptr

	slot      int
	timestamp time.Duration
	skipRcfg  bool
}

// NewRequest creates an unbound request. The notifier may be nil.
func NewRequest(notifier Notifier) *Request {
	return &Request{
		id:       requestIDs.Generate(),
		notifier: notifier,
		slot:     NoSlot,
	}
}

// ID returns a process-unique id of the request.
func (r *Request) ID() string {
	return r.id
}

// Bind sets the hardware task to run and its arguments.
func (r *Request) Bind(t *hwtask.HwTask, args []uintptr) error {
	if len(args) > hw.MaxArgs {
		return fmt.Errorf("%d arguments, at most %d allowed", len(args), hw.MaxArgs)
	}

	r.hwTask = t
	r.args = append(r.args[:0], args...)

	return nil
}

// Unbind clears the hardware task and everything the scheduler attached.
func (r *Request) Unbind() {
	r.hwTask = nil
	r.args = r.args[:0]
	r.slot = NoSlot
	r.skipRcfg = false
}

// HwTask returns the bound hardware task.
func (r *Request) HwTask() *hwtask.HwTask {
	return r.hwTask
}

// Args returns the physical addresses of the data buffers.
func (r *Request) Args() []uintptr {
	return r.args
}

// Slot returns the index of the reserved slot within the partition of the
// hardware task, or NoSlot. The slot timer shares the index.
func (r *Request) Slot() int {
	return r.slot
}

// SetSlot records the reserved slot.
func (r *Request) SetSlot(slot int) {
	r.slot = slot
}

// Stamp records the arrival time.
func (r *Request) Stamp(t time.Duration) {
	r.timestamp = t
}

// Timestamp returns the arrival time.
func (r *Request) Timestamp() time.Duration {
	return r.timestamp
}

// SkipRcfg reports whether the reserved slot already holds the hardware task.
func (r *Request) SkipRcfg() bool {
	return r.skipRcfg
}

// SetSkipRcfg marks the request as not needing a reconfiguration.
func (r *Request) SetSkipRcfg(skip bool) {
	r.skipRcfg = skip
}

// Before reports whether r arrived strictly before o.
func (r *Request) Before(o *Request) bool {
	return r.timestamp < o.timestamp
}

// Notify tells the client how the request ended.
func (r *Request) Notify(msg NotifyMsg) error {
	if r.notifier == nil {
		return nil
	}

	return r.notifier.Notify(r, msg)
}

func (r *Request) String() string {
	if r.hwTask == nil {
		return "request " + r.id
	}

	return fmt.Sprintf("request %s for %s", r.id, r.hwTask.Name())
}
