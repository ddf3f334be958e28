// Package scheduler dispatches acceleration requests onto the slots of the
// fabric. Requests that need a reconfiguration are ordered by arrival time
// in a single queue in front of the reconfiguration device.
package scheduler

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/devcfg"
	"github.com/fredsys/fred/partition"
	"github.com/fredsys/fred/sim/hooking"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/slot"
	log "github.com/sirupsen/logrus"
)

// ErrHwTaskMismatch is returned when a freshly programmed slot reports an id
// other than the one of the hardware task it was loaded with.
var ErrHwTaskMismatch = errors.New("hw-task id mismatch")

// ErrUnboundRequest is returned when a request without hardware task is
// pushed.
var ErrUnboundRequest = errors.New("request is not bound to a hw-task")

// Mode selects when reconfigurations are skipped.
type Mode int

const (
	// Normal reuses a slot that already holds the hardware task.
	Normal Mode = iota

	// AlwaysRcfg reprograms the slot for every request.
	AlwaysRcfg
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case AlwaysRcfg:
		return "always-rcfg"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "normal", "":
		return Normal, nil
	case "always-rcfg":
		return AlwaysRcfg, nil
	default:
		return Normal, fmt.Errorf("unknown scheduling mode %q", s)
	}
}

// PartitionTable gives access to the partitions of the system by index.
type PartitionTable interface {
	NumPartitions() int
	Partition(i int) *partition.Partition
}

// ReconfigDevice is the single programming port of the fabric.
type ReconfigDevice interface {
	AttachScheduler(l devcfg.RcfgListener)
	IsIdle() bool
	StartRcfg(req *accel.Request, s *slot.Slot) error
	ClearEvt() (time.Duration, error)
}

// Scheduler owns the reconfiguration queue. It must only be driven from the
// engine thread.
type Scheduler struct {
	*hooking.HookableBase

	engine     timing.TimeTeller
	partitions PartitionTable
	devcfg     ReconfigDevice
	mode       Mode
	search     partition.SearchPolicy
	checkHwID  bool
	logger     log.FieldLogger

	fri []*accel.Request
}

// Name returns the name of the scheduler.
func (s *Scheduler) Name() string {
	return "scheduler"
}

// Mode returns the scheduling mode.
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// FRIQueueLen returns the number of requests waiting for the reconfiguration
// device.
func (s *Scheduler) FRIQueueLen() int {
	return len(s.fri)
}

// FRIQueue returns a copy of the reconfiguration queue, oldest first.
func (s *Scheduler) FRIQueue() []*accel.Request {
	return slices.Clone(s.fri)
}

// PushAccelReq admits a request. The request is stamped with the current
// time and either gets a slot or waits in the queue of its partition.
func (s *Scheduler) PushAccelReq(req *accel.Request) error {
	t := req.HwTask()
	if t == nil {
		return fmt.Errorf("push %s: %w", req, ErrUnboundRequest)
	}

	p := s.partitions.Partition(t.Partition())
	req.Stamp(s.engine.CurrentTime())
	s.invoke(HookPosReqPushed, req, p, partition.NoSlot, 0)

	idx, needsRcfg := p.Search(s.search, t)
	if idx == partition.NoSlot {
		p.Push(req)
		s.logger.Debugf("%s: all slots of partition %s busy, queued",
			req, p.Name())
		s.invoke(HookPosReqQueued, req, p, partition.NoSlot, 0)

		return nil
	}

	s.reserve(p, idx, req, !needsRcfg)
	s.logger.Debugf("%s: got slot %d of partition %s", req, idx, p.Name())

	return s.pushFRI(req)
}

// RcfgComplete is called by the reconfiguration device once the slot of the
// request is programmed.
func (s *Scheduler) RcfgComplete(req *accel.Request) error {
	elapsed, err := s.devcfg.ClearEvt()
	if err != nil {
		return fmt.Errorf("rcfg complete %s: %w", req, err)
	}

	p, sl := s.slotOf(req)
	sl.ReinitAfterRcfg()
	s.invoke(HookPosRcfgDone, req, p, sl.Index(), elapsed)

	if s.checkHwID && !sl.CheckHwTaskConsistency() {
		return fmt.Errorf("%w: slot %s reports %d, expected %s",
			ErrHwTaskMismatch, sl.Name(), sl.DriverID(), req.HwTask())
	}

	return s.startSlot(req)
}

// SlotComplete is called by a slot whose accelerator finished the request.
func (s *Scheduler) SlotComplete(req *accel.Request) error {
	p, sl := s.slotOf(req)
	idx := sl.Index()

	elapsed := p.Timer(idx).Disarm()
	sl.ClearAfterCompute()
	s.invoke(HookPosComputeDone, req, p, idx, elapsed)

	s.notify(req, accel.NotifyDone)

	return s.drain(p, idx)
}

// SlotTimeout is called by the watchdog of a slot whose accelerator overran
// the timeout of its hardware task. The hardware task is banned and the slot
// is disabled until it is reprogrammed.
func (s *Scheduler) SlotTimeout(req *accel.Request) error {
	p, sl := s.slotOf(req)
	idx := sl.Index()
	t := req.HwTask()

	t.Ban()
	sl.DisableAfterTimeout()
	s.logger.Warnf("%s: timeout on slot %s, hw-task %s banned",
		req, sl.Name(), t)
	s.invoke(HookPosTimeout, req, p, idx, t.Timeout())

	s.notify(req, accel.NotifyOverrun)

	return s.drain(p, idx)
}

// Print writes the scheduler state.
func (s *Scheduler) Print(w io.Writer) {
	fmt.Fprintf(w, "scheduler: mode %s, %d in fri queue\n", s.mode, len(s.fri))

	for i := 0; i < s.partitions.NumPartitions(); i++ {
		s.partitions.Partition(i).Print(w)
	}
}

func (s *Scheduler) reserve(
	p *partition.Partition,
	idx int,
	req *accel.Request,
	resident bool,
) {
	p.Slot(idx).Reserve()
	req.SetSlot(idx)
	req.SetSkipRcfg(resident && s.mode != AlwaysRcfg)
}

// pushFRI inserts the request after every request stamped at or before it,
// so requests with equal stamps keep their push order.
func (s *Scheduler) pushFRI(req *accel.Request) error {
	i := slices.IndexFunc(s.fri, func(o *accel.Request) bool {
		return req.Before(o)
	})
	if i < 0 {
		i = len(s.fri)
	}

	s.fri = slices.Insert(s.fri, i, req)

	if !s.devcfg.IsIdle() || s.fri[0] != req {
		return nil
	}

	s.popFRI()

	return s.startRcfg(req)
}

func (s *Scheduler) popFRI() *accel.Request {
	req := s.fri[0]
	s.fri[0] = nil
	s.fri = s.fri[1:]

	return req
}

func (s *Scheduler) startRcfg(req *accel.Request) error {
	p, sl := s.slotOf(req)

	if req.SkipRcfg() {
		s.invoke(HookPosRcfgSkipped, req, p, sl.Index(), 0)
		return s.startSlot(req)
	}

	sl.PrepareForRcfg()
	s.invoke(HookPosRcfgStart, req, p, sl.Index(), 0)

	if err := s.devcfg.StartRcfg(req, sl); err != nil {
		return fmt.Errorf("start rcfg %s: %w", req, err)
	}

	return nil
}

// startSlot starts the accelerator and then hands the reconfiguration device
// to the next request in line.
func (s *Scheduler) startSlot(req *accel.Request) error {
	p, sl := s.slotOf(req)
	idx := sl.Index()

	if err := sl.StartCompute(req); err != nil {
		return fmt.Errorf("start compute %s: %w", req, err)
	}

	p.Timer(idx).Arm(req.HwTask().Timeout(), req)
	s.invoke(HookPosComputeStart, req, p, idx, 0)

	if len(s.fri) == 0 {
		return nil
	}

	return s.startRcfg(s.popFRI())
}

// drain gives a freed slot to the oldest request waiting in the partition.
// Waiting requests of a banned hw-task are notified Overrun and skipped.
func (s *Scheduler) drain(p *partition.Partition, idx int) error {
	for {
		next := p.Pop()
		if next == nil {
			return nil
		}

		if next.HwTask().Banned() {
			s.reject(p, next)
			continue
		}

		sl := p.Slot(idx)
		s.reserve(p, idx, next, sl.MatchHwTask(next.HwTask()))
		s.logger.Debugf("%s: dequeued onto slot %d of partition %s",
			next, idx, p.Name())

		return s.pushFRI(next)
	}
}

func (s *Scheduler) reject(p *partition.Partition, req *accel.Request) {
	s.logger.Warnf("%s: hw-task %s banned while queued, not started",
		req, req.HwTask())
	s.invoke(HookPosReqRejected, req, p, partition.NoSlot, 0)

	s.notify(req, accel.NotifyOverrun)
}

func (s *Scheduler) notify(req *accel.Request, msg accel.NotifyMsg) {
	if err := req.Notify(msg); err != nil {
		s.logger.Warnf("%s: notify %s: %v", req, msg, err)
	}
}

func (s *Scheduler) slotOf(req *accel.Request) (*partition.Partition, *slot.Slot) {
	idx := req.Slot()
	if idx == accel.NoSlot {
		s.logger.Panicf("%s: request holds no slot", req)
	}

	p := s.partitions.Partition(req.HwTask().Partition())

	return p, p.Slot(idx)
}

func (s *Scheduler) invoke(
	pos *hooking.HookPos,
	req *accel.Request,
	p *partition.Partition,
	idx int,
	elapsed time.Duration,
) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   req,
		Detail: HookInfo{
			Time:        s.engine.CurrentTime(),
			Partition:   p.Index(),
			Slot:        idx,
			Elapsed:     elapsed,
			FRIQueueLen: len(s.fri),
		},
	})
}
