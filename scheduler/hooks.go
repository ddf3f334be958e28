package scheduler

import (
	"time"

	"github.com/fredsys/fred/sim/hooking"
)

// Hook positions of the scheduler. The hook item is the *accel.Request and
// the detail is a HookInfo.
var (
	HookPosReqPushed    = &hooking.HookPos{Name: "ReqPushed"}
	HookPosReqQueued    = &hooking.HookPos{Name: "ReqQueued"}
	HookPosRcfgStart    = &hooking.HookPos{Name: "RcfgStart"}
	HookPosRcfgSkipped  = &hooking.HookPos{Name: "RcfgSkipped"}
	HookPosRcfgDone     = &hooking.HookPos{Name: "RcfgDone"}
	HookPosComputeStart = &hooking.HookPos{Name: "ComputeStart"}
	HookPosComputeDone  = &hooking.HookPos{Name: "ComputeDone"}
	HookPosTimeout      = &hooking.HookPos{Name: "Timeout"}

	// HookPosReqRejected fires for a queued request whose hw-task was
	// banned before it got a slot. The request is never started.
	HookPosReqRejected = &hooking.HookPos{Name: "ReqRejected"}
)

// HookInfo describes where a scheduling step happened.
type HookInfo struct {
	Time      time.Duration
	Partition int
	Slot      int

	// Elapsed is the reconfiguration time for RcfgDone and the execution
	// time for ComputeDone and Timeout.
	Elapsed time.Duration

	// FRIQueueLen is the depth of the reconfiguration queue after the step.
	FRIQueueLen int
}
