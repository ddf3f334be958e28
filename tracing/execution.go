// Package tracing records how acceleration requests went through the
// scheduler.
package tracing

import (
	"time"

	"github.com/fredsys/fred/accel"
)

// Outcome values of an Execution.
const (
	OutcomeDone    = "done"
	OutcomeOverrun = "overrun"
)

// Execution is one run of a request, from push to completion or timeout.
// Times are in seconds. A skipped reconfiguration has equal start and end.
type Execution struct {
	ID        string
	HwTask    string
	HwID      uint32
	Partition int
	Slot      int
	Push      float64
	RcfgStart float64
	RcfgEnd   float64
	ExecStart float64
	ExecEnd   float64
	Skipped   bool
	Queued    bool
	Outcome   string
}

// ResponseTime is the time between the push and the end of the execution.
func (e Execution) ResponseTime() time.Duration {
	return seconds(e.ExecEnd - e.Push)
}

// ExecTime is the time the accelerator ran.
func (e Execution) ExecTime() time.Duration {
	return seconds(e.ExecEnd - e.ExecStart)
}

// RcfgTime is the time spent programming the slot.
func (e Execution) RcfgTime() time.Duration {
	return seconds(e.RcfgEnd - e.RcfgStart)
}

// Overrun reports whether the execution hit the timeout.
func (e Execution) Overrun() bool {
	return e.Outcome == OutcomeOverrun
}

func newExecution(req *accel.Request, t time.Duration) *Execution {
	hwTask := req.HwTask()

	return &Execution{
		ID:        req.ID(),
		HwTask:    hwTask.Name(),
		HwID:      hwTask.ID(),
		Partition: hwTask.Partition(),
		Slot:      accel.NoSlot,
		Push:      t.Seconds(),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
