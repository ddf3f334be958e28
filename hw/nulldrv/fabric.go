// Package nulldrv provides software drivers that behave like a
// reconfigurable fabric without touching hardware. Programming a bitstream
// makes the slot report the id of the hardware task it was built for, and
// the slot then completes computations after a configurable latency.
package nulldrv

import (
	"fmt"
	"time"

	"github.com/fredsys/fred/hw"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ExecProfile describes how a hardware task behaves once loaded.
type ExecProfile struct {
	Latency time.Duration

	// Hang makes the accelerator never complete.
	Hang bool
}

// DefaultExecProfile is used for hardware tasks without a profile.
var DefaultExecProfile = ExecProfile{Latency: time.Millisecond}

const bitstreamAlign = 4096

type image struct {
	target hw.BitstreamTarget
	size   uint64
}

type slotKey struct {
	partition int
	slot      int
}

// Fabric is the shared state behind the null drivers. It is not safe for
// concurrent use; all calls are expected to come from the engine thread.
type Fabric struct {
	fs     afero.Fs
	logger log.FieldLogger

	nextAddr   uintptr
	images     map[uintptr]image
	profiles   map[uint32]ExecProfile
	slots      map[slotKey]*SlotDriver
	decouplers map[slotKey]*Decoupler
}

// NewFabric creates an empty fabric. Bitstream files are read from fs.
func NewFabric(fs afero.Fs, logger log.FieldLogger) *Fabric {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Fabric{
		fs:         fs,
		logger:     logger,
		nextAddr:   0x1000_0000,
		images:     make(map[uintptr]image),
		profiles:   make(map[uint32]ExecProfile),
		slots:      make(map[slotKey]*SlotDriver),
		decouplers: make(map[slotKey]*Decoupler),
	}
}

// SetProfile sets how the hardware task with the given id behaves.
func (f *Fabric) SetProfile(hwID uint32, p ExecProfile) {
	f.profiles[hwID] = p
}

func (f *Fabric) profile(hwID uint32) ExecProfile {
	p, found := f.profiles[hwID]
	if !found {
		return DefaultExecProfile
	}

	return p
}

// Load registers a bitstream file. The file must exist; its size becomes the
// bitstream size.
func (f *Fabric) Load(path string, target hw.BitstreamTarget) (hw.Bitstream, error) {
	info, err := f.fs.Stat(path)
	if err != nil {
		return hw.Bitstream{}, fmt.Errorf("bitstream %s: %w", path, err)
	}

	return f.AddImage(target, uint64(info.Size())), nil
}

// AddImage registers a bitstream of the given size without a backing file.
func (f *Fabric) AddImage(target hw.BitstreamTarget, size uint64) hw.Bitstream {
	b := hw.Bitstream{Addr: f.nextAddr, Size: size}
	f.images[b.Addr] = image{target: target, size: size}

	f.nextAddr += uintptr((size + bitstreamAlign - 1) / bitstreamAlign * bitstreamAlign)

	return b
}

// SlotDriver creates the null accelerator driver of a slot.
func (f *Fabric) SlotDriver(partition, slot int, devName string) (hw.SlotDriver, error) {
	key := slotKey{partition, slot}
	if _, found := f.slots[key]; found {
		return nil, fmt.Errorf("slot driver %s already exists", devName)
	}

	d := &SlotDriver{name: devName, logger: f.logger}
	f.slots[key] = d

	return d, nil
}

// Decoupler creates the null decoupler of a slot.
func (f *Fabric) Decoupler(partition, slot int, devName string) (hw.Decoupler, error) {
	key := slotKey{partition, slot}
	if _, found := f.decouplers[key]; found {
		return nil, fmt.Errorf("decoupler %s already exists", devName)
	}

	d := &Decoupler{name: devName}
	f.decouplers[key] = d

	return d, nil
}

// check verifies that a bitstream can be programmed right now.
func (f *Fabric) check(b hw.Bitstream) (image, error) {
	img, found := f.images[b.Addr]
	if !found || img.size != b.Size {
		return image{}, fmt.Errorf("no bitstream at %s", b)
	}

	key := slotKey{img.target.Partition, img.target.Slot}
	if _, found := f.slots[key]; !found {
		return image{}, fmt.Errorf("bitstream %s targets an unknown slot", b)
	}

	if dec, found := f.decouplers[key]; found && dec.Coupled() {
		return image{}, fmt.Errorf(
			"slot p%d s%d is coupled during reconfiguration",
			key.partition, key.slot)
	}

	return img, nil
}

// program loads an image into its slot.
func (f *Fabric) program(img image) {
	slot := f.slots[slotKey{img.target.Partition, img.target.Slot}]
	slot.load(img.target.HwID, f.profile(img.target.HwID))

	f.logger.Debugf("fabric: %s loaded into %s", img.target.HwTask, slot.name)
}
