// Package partition groups interchangeable slots and queues the requests
// that find all of them busy.
package partition

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/slot"
)

// MaxSlots bounds the number of slots of a partition.
const MaxSlots = 64

// NoSlot is returned by searches that found no available slot.
const NoSlot = -1

// SearchPolicy selects how a free slot is picked.
type SearchPolicy int

const (
	// SearchFirst takes a slot already holding the hardware task if there
	// is one, the first available slot otherwise.
	SearchFirst SearchPolicy = iota

	// SearchRandom takes any available slot at random.
	SearchRandom
)

func (p SearchPolicy) String() string {
	switch p {
	case SearchFirst:
		return "first"
	case SearchRandom:
		return "random"
	default:
		return fmt.Sprintf("SearchPolicy(%d)", int(p))
	}
}

// ParseSearchPolicy converts a policy name back to a SearchPolicy.
func ParseSearchPolicy(s string) (SearchPolicy, error) {
	switch s {
	case "first", "":
		return SearchFirst, nil
	case "random":
		return SearchRandom, nil
	default:
		return SearchFirst, fmt.Errorf("unknown slot search policy %q", s)
	}
}

// Partition is a named group of slots that can host the same hardware tasks.
// Each slot has a watchdog timer at the same index.
type Partition struct {
	name   string
	index  int
	slots  []*slot.Slot
	timers []*slot.Timer
	queue  []*accel.Request

	rand *rand.Rand
}

// New creates an empty partition.
func New(name string, index int) *Partition {
	return &Partition{
		name:  name,
		index: index,
	}
}

// Name returns the partition name.
func (p *Partition) Name() string {
	return p.name
}

// Index returns the position of the partition in the layout.
func (p *Partition) Index() int {
	return p.index
}

// AddSlot appends a slot and its timer.
func (p *Partition) AddSlot(s *slot.Slot, t *slot.Timer) error {
	if len(p.slots) >= MaxSlots-1 {
		return fmt.Errorf("partition %s: too many slots", p.name)
	}

	p.slots = append(p.slots, s)
	p.timers = append(p.timers, t)

	return nil
}

// NumSlots returns the number of slots.
func (p *Partition) NumSlots() int {
	return len(p.slots)
}

// Slot returns the slot at index i.
func (p *Partition) Slot(i int) *slot.Slot {
	return p.slots[i]
}

// Timer returns the watchdog of the slot at index i.
func (p *Partition) Timer(i int) *slot.Timer {
	return p.timers[i]
}

// SearchSlot looks for an available slot for t in index order. An available
// slot that already holds t is preferred and needs no reconfiguration.
// Otherwise the first available slot is returned and needs one. NoSlot is
// returned when every slot is busy.
func (p *Partition) SearchSlot(t *hwtask.HwTask) (int, bool) {
	first := NoSlot

	for i, s := range p.slots {
		if !s.IsAvailable() {
			continue
		}

		if s.MatchHwTask(t) {
			return i, false
		}

		if first == NoSlot {
			first = i
		}
	}

	return first, first != NoSlot
}

// SearchRandomSlot returns an available slot chosen at random. It needs no
// reconfiguration only if it happens to hold t already.
func (p *Partition) SearchRandomSlot(t *hwtask.HwTask) (int, bool) {
	available := make([]int, 0, len(p.slots))
	for i, s := range p.slots {
		if s.IsAvailable() {
			available = append(available, i)
		}
	}

	if len(available) == 0 {
		return NoSlot, false
	}

	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(int64(p.index) + 1))
	}

	i := available[p.rand.Intn(len(available))]

	return i, !p.slots[i].MatchHwTask(t)
}

// Search dispatches to the search of the given policy.
func (p *Partition) Search(policy SearchPolicy, t *hwtask.HwTask) (int, bool) {
	if policy == SearchRandom {
		return p.SearchRandomSlot(t)
	}

	return p.SearchSlot(t)
}

// Push appends a request to the waiting queue.
func (p *Partition) Push(req *accel.Request) {
	p.queue = append(p.queue, req)
}

// Pop removes the oldest waiting request. It returns nil if none waits.
func (p *Partition) Pop() *accel.Request {
	if len(p.queue) == 0 {
		return nil
	}

	req := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]

	return req
}

// QueueLen returns the number of waiting requests.
func (p *Partition) QueueLen() int {
	return len(p.queue)
}

// RegisterSlots registers every slot and its timer with the engine and
// attaches the slot drivers.
func (p *Partition) RegisterSlots(engine timing.Engine) {
	for i, s := range p.slots {
		engine.RegisterHandler(s, timing.PriorityHigh, timing.NotOwned)
		engine.RegisterHandler(p.timers[i], timing.PriorityHigh, timing.NotOwned)
		s.Attach(engine)
	}
}

// Print writes a description of the partition and the state of its slots.
func (p *Partition) Print(w io.Writer) {
	fmt.Fprintf(w, "partition %d %s: %d slots, %d queued\n",
		p.index, p.name, len(p.slots), len(p.queue))

	for _, s := range p.slots {
		held := "-"
		if t := s.HwTask(); t != nil && s.State() != slot.Blank {
			held = t.Name()
		}

		fmt.Fprintf(w, "  slot %d %s: %s, %s\n", s.Index(), s.Name(), s.State(), held)
	}
}
