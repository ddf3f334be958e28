// Package hw defines the driver interfaces the scheduling core talks to. A
// driver never blocks the caller: completions are delivered later as events
// on the engine the driver is attached to.
package hw

import (
	"errors"
	"fmt"
	"time"

	"github.com/fredsys/fred/sim/timing"
)

// MaxArgs is the number of argument registers of a slot accelerator.
const MaxArgs = 8

// ErrAcceleratorBusy is returned by StartCompute when the accelerator is
// still running a previous computation.
var ErrAcceleratorBusy = errors.New("accelerator busy")

// Bitstream is the physical location of a partial bitstream.
type Bitstream struct {
	Addr uintptr
	Size uint64
}

func (b Bitstream) String() string {
	return fmt.Sprintf("%#x+%d", b.Addr, b.Size)
}

// ComputeDone is delivered to the handler attached to a SlotDriver when the
// accelerator finishes. Cancelled is set by the driver when the completion no
// longer belongs to the computation that is running.
type ComputeDone struct {
	Cancelled bool
}

// RcfgDone is delivered to the handler attached to a ReconfigDriver when a
// bitstream has been loaded.
type RcfgDone struct{}

// SlotDriver controls the accelerator inside one slot.
type SlotDriver interface {
	// ID returns the hardware task id reported by the accelerator.
	ID() uint32

	// Attach makes the driver deliver ComputeDone events to h.
	Attach(engine timing.EventScheduler, h timing.Handler)

	BeforeRcfg()
	AfterRcfg()

	// StartCompute writes the arguments and starts the accelerator.
	StartCompute(args []uintptr) error

	// AfterCompute acknowledges a completion.
	AfterCompute()

	Close() error
}

// Decoupler isolates a slot from the system bus.
type Decoupler interface {
	Decouple()
	Couple()
	Close() error
}

// ReconfigDriver controls the reconfiguration engine.
type ReconfigDriver interface {
	// Attach makes the driver deliver RcfgDone events to h.
	Attach(engine timing.EventScheduler, h timing.Handler)

	// StartRcfg starts loading the bitstream.
	StartRcfg(b Bitstream) error

	// AfterRcfg clears the completion and reports how long the
	// reconfiguration took.
	AfterRcfg() (time.Duration, error)

	Close() error
}

// DriverFactory creates the drivers of one slot. Device names follow the
// slot_p<P>_s<S> and pr_decoupler_p<P>_s<S> convention.
type DriverFactory interface {
	SlotDriver(partition, slot int, devName string) (SlotDriver, error)
	Decoupler(partition, slot int, devName string) (Decoupler, error)
}

// Buffer is a physically contiguous data buffer shared with an accelerator.
type Buffer struct {
	DevName  string
	PhysAddr uintptr
	Size     uint64
}

// BufferAllocator hands out data buffers.
type BufferAllocator interface {
	Alloc(size uint64) (Buffer, error)
	Free(b Buffer) error
}

// BitstreamTarget identifies the slot a bitstream is built for.
type BitstreamTarget struct {
	HwTask    string
	HwID      uint32
	Partition int
	Slot      int
}

// BitstreamLoader makes a bitstream file available to the reconfiguration
// engine and returns its physical location.
type BitstreamLoader interface {
	Load(path string, target BitstreamTarget) (Bitstream, error)
}
