package tracing

import (
	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/scheduler"
	"github.com/fredsys/fred/sim/hooking"
)

// A Recorder receives every finished execution.
type Recorder interface {
	Record(e Execution)
}

// RequestTracer is a scheduler hook that follows each request through its
// scheduling steps and hands the finished Execution to its recorders.
type RequestTracer struct {
	recorders []Recorder
	inFlight  map[*accel.Request]*Execution
}

// NewRequestTracer creates a tracer that reports to the given recorders.
func NewRequestTracer(recorders ...Recorder) *RequestTracer {
	return &RequestTracer{
		recorders: recorders,
		inFlight:  make(map[*accel.Request]*Execution),
	}
}

// CollectTrace attaches a tracer with the given recorders to the scheduler.
func CollectTrace(s *scheduler.Scheduler, recorders ...Recorder) *RequestTracer {
	t := NewRequestTracer(recorders...)
	s.AcceptHook(t)

	return t
}

// InFlight returns the number of requests pushed but not finished.
func (t *RequestTracer) InFlight() int {
	return len(t.inFlight)
}

// Func records a scheduling step.
func (t *RequestTracer) Func(ctx hooking.HookCtx) {
	req, ok := ctx.Item.(*accel.Request)
	if !ok {
		return
	}

	info := ctx.Detail.(scheduler.HookInfo)
	now := info.Time.Seconds()

	if ctx.Pos == scheduler.HookPosReqPushed {
		t.inFlight[req] = newExecution(req, info.Time)
		return
	}

	e, found := t.inFlight[req]
	if !found {
		return
	}

	switch ctx.Pos {
	case scheduler.HookPosReqQueued:
		e.Queued = true
	case scheduler.HookPosRcfgStart:
		e.Slot = info.Slot
		e.RcfgStart = now
	case scheduler.HookPosRcfgSkipped:
		e.Slot = info.Slot
		e.Skipped = true
		e.RcfgStart = now
		e.RcfgEnd = now
	case scheduler.HookPosRcfgDone:
		e.RcfgEnd = now
	case scheduler.HookPosComputeStart:
		e.Slot = info.Slot
		e.ExecStart = now
	case scheduler.HookPosComputeDone:
		t.finish(req, e, now, OutcomeDone)
	case scheduler.HookPosTimeout:
		t.finish(req, e, now, OutcomeOverrun)
	case scheduler.HookPosReqRejected:
		delete(t.inFlight, req)
	}
}

func (t *RequestTracer) finish(
	req *accel.Request,
	e *Execution,
	now float64,
	outcome string,
) {
	e.ExecEnd = now
	e.Outcome = outcome
	delete(t.inFlight, req)

	for _, r := range t.recorders {
		r.Record(*e)
	}
}
