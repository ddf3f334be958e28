package nulldrv

import (
	"fmt"

	"github.com/fredsys/fred/hw"
)

const bufferAlign = 4096

// Allocator hands out fake physically contiguous buffers. Freed buffers are
// not reused.
type Allocator struct {
	next  uintptr
	count int
	live  map[uintptr]hw.Buffer
	limit uint64
	used  uint64
}

// NewAllocator creates an allocator that can hand out up to limit bytes. A
// zero limit means unlimited.
func NewAllocator(limit uint64) *Allocator {
	return &Allocator{
		next:  0x4000_0000,
		live:  make(map[uintptr]hw.Buffer),
		limit: limit,
	}
}

// Alloc returns a new buffer of the given size.
func (a *Allocator) Alloc(size uint64) (hw.Buffer, error) {
	if size == 0 {
		return hw.Buffer{}, fmt.Errorf("cannot allocate an empty buffer")
	}

	if a.limit > 0 && a.used+size > a.limit {
		return hw.Buffer{}, fmt.Errorf(
			"out of buffer memory: %d bytes in use, %d requested",
			a.used, size)
	}

	b := hw.Buffer{
		DevName:  fmt.Sprintf("/dev/fred/buff%d", a.count),
		PhysAddr: a.next,
		Size:     size,
	}

	a.count++
	a.used += size
	a.next += uintptr((size + bufferAlign - 1) / bufferAlign * bufferAlign)
	a.live[b.PhysAddr] = b

	return b, nil
}

// Free releases a buffer.
func (a *Allocator) Free(b hw.Buffer) error {
	if _, found := a.live[b.PhysAddr]; !found {
		return fmt.Errorf("buffer %s at %#x is not allocated", b.DevName, b.PhysAddr)
	}

	delete(a.live, b.PhysAddr)
	a.used -= b.Size

	return nil
}

// InUse returns the number of bytes currently allocated.
func (a *Allocator) InUse() uint64 {
	return a.used
}
