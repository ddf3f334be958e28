// Package hwtask describes the hardware tasks that can be loaded into the
// slots of a partition.
package hwtask

import (
	"fmt"
	"time"

	"github.com/fredsys/fred/hw"
)

// HwTask is a loadable hardware accelerator configuration. Everything but
// the ban flag is fixed when the layout is built.
type HwTask struct {
	id          uint32
	name        string
	partition   int
	bitstreams  []hw.Bitstream
	bufferSizes []uint64
	timeout     time.Duration
	banned      bool
}

// New creates a hardware task. There must be one bitstream per slot of the
// partition.
func New(
	id uint32,
	name string,
	partition int,
	bitstreams []hw.Bitstream,
	bufferSizes []uint64,
	timeout time.Duration,
) (*HwTask, error) {
	if len(bufferSizes) > hw.MaxArgs {
		return nil, fmt.Errorf(
			"hw-task %s: %d data buffers, at most %d allowed",
			name, len(bufferSizes), hw.MaxArgs)
	}

	if timeout <= 0 {
		return nil, fmt.Errorf("hw-task %s: timeout must be positive", name)
	}

	return &HwTask{
		id:          id,
		name:        name,
		partition:   partition,
		bitstreams:  bitstreams,
		bufferSizes: bufferSizes,
		timeout:     timeout,
	}, nil
}

// ID returns the id reported by the hardware once the task is loaded.
func (t *HwTask) ID() uint32 {
	return t.id
}

// Name returns the name of the task.
func (t *HwTask) Name() string {
	return t.name
}

// Partition returns the index of the partition hosting the task.
func (t *HwTask) Partition() int {
	return t.partition
}

// Bitstream returns the bitstream built for the given slot of the partition.
func (t *HwTask) Bitstream(slot int) hw.Bitstream {
	if slot < 0 || slot >= len(t.bitstreams) {
		panic(fmt.Sprintf("hw-task %s has no bitstream for slot %d", t.name, slot))
	}

	return t.bitstreams[slot]
}

// NumBitstreams returns the number of slots the task has a bitstream for.
func (t *HwTask) NumBitstreams() int {
	return len(t.bitstreams)
}

// BufferSizes returns the sizes of the data buffers a client gets when it
// binds to the task.
func (t *HwTask) BufferSizes() []uint64 {
	return t.bufferSizes
}

// Timeout returns how long one computation may run.
func (t *HwTask) Timeout() time.Duration {
	return t.timeout
}

// Ban disables the task for the rest of the process lifetime.
func (t *HwTask) Ban() {
	t.banned = true
}

// Banned reports whether the task overran its timeout.
func (t *HwTask) Banned() bool {
	return t.banned
}

func (t *HwTask) String() string {
	return fmt.Sprintf("%s (id %d)", t.name, t.id)
}
