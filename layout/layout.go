// Package layout builds the partitions, slots and hardware tasks of a
// system from its description.
package layout

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/docker/go-units"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/partition"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/slot"
	log "github.com/sirupsen/logrus"
)

// Limits of a layout.
const (
	MaxPartitions = 32
	MaxHwTasks    = 128
)

// DefaultTimeout is used for hardware tasks without a timeout.
const DefaultTimeout = time.Second

// ErrUnknownPartition is returned when a hardware task names a partition
// that does not exist.
var ErrUnknownPartition = errors.New("unknown partition")

// SysLayout holds every partition and hardware task of the system.
type SysLayout struct {
	partitions []*partition.Partition
	hwTasks    []*hwtask.HwTask
	byID       map[uint32]*hwtask.HwTask
	closers    []io.Closer
}

// Builder can build system layouts.
type Builder struct {
	root           string
	engine         timing.EventScheduler
	drivers        hw.DriverFactory
	loader         hw.BitstreamLoader
	defaultTimeout time.Duration
	logger         log.FieldLogger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		root:           "/",
		defaultTimeout: DefaultTimeout,
		logger:         log.StandardLogger(),
	}
}

// WithRoot sets the directory bitstream paths are relative to.
func (b Builder) WithRoot(root string) Builder {
	b.root = root
	return b
}

// WithEngine sets the engine the slot timers schedule on.
func (b Builder) WithEngine(engine timing.EventScheduler) Builder {
	b.engine = engine
	return b
}

// WithDriverFactory sets how slot drivers are created.
func (b Builder) WithDriverFactory(f hw.DriverFactory) Builder {
	b.drivers = f
	return b
}

// WithBitstreamLoader sets how bitstream files are loaded.
func (b Builder) WithBitstreamLoader(l hw.BitstreamLoader) Builder {
	b.loader = l
	return b
}

// WithDefaultTimeout sets the timeout of hardware tasks that have none.
func (b Builder) WithDefaultTimeout(d time.Duration) Builder {
	b.defaultTimeout = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger log.FieldLogger) Builder {
	b.logger = logger
	return b
}

// Build creates the layout described by cfg.
func (b Builder) Build(cfg *Config) (*SysLayout, error) {
	if b.engine == nil || b.drivers == nil || b.loader == nil {
		return nil, errors.New("layout needs an engine, a driver factory and a bitstream loader")
	}

	l := &SysLayout{byID: make(map[uint32]*hwtask.HwTask)}

	if err := b.buildPartitions(l, cfg.Partitions); err != nil {
		l.Close()
		return nil, err
	}

	if err := b.buildHwTasks(l, cfg.HwTasks); err != nil {
		l.Close()
		return nil, err
	}

	b.logger.Infof("layout: %d partitions, %d hw-tasks",
		len(l.partitions), len(l.hwTasks))

	return l, nil
}

func (b Builder) buildPartitions(l *SysLayout, cfgs []PartitionConfig) error {
	if len(cfgs) == 0 {
		return errors.New("layout has no partitions")
	}

	if len(cfgs) > MaxPartitions {
		return fmt.Errorf("%d partitions, at most %d allowed",
			len(cfgs), MaxPartitions)
	}

	for pi, pc := range cfgs {
		if l.partitionIndex(pc.Name) >= 0 {
			return fmt.Errorf("partition %s defined twice", pc.Name)
		}

		if pc.Slots <= 0 {
			return fmt.Errorf("partition %s: no slots", pc.Name)
		}

		p := partition.New(pc.Name, pi)
		l.partitions = append(l.partitions, p)

		for si := 0; si < pc.Slots; si++ {
			s, err := b.buildSlot(l, pi, si)
			if err != nil {
				return fmt.Errorf("partition %s: %w", pc.Name, err)
			}

			timer := slot.NewTimer(s.Name(), b.engine, b.logger)
			if err := p.AddSlot(s, timer); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b Builder) buildSlot(l *SysLayout, pi, si int) (*slot.Slot, error) {
	name := fmt.Sprintf("slot_p%d_s%d", pi, si)

	drv, err := b.drivers.SlotDriver(pi, si, name)
	if err != nil {
		return nil, err
	}

	dec, err := b.drivers.Decoupler(pi, si, fmt.Sprintf("pr_decoupler_p%d_s%d", pi, si))
	if err != nil {
		drv.Close()
		return nil, err
	}

	s := slot.New(name, si, drv, dec, b.logger)
	l.closers = append(l.closers, s)

	return s, nil
}

func (b Builder) buildHwTasks(l *SysLayout, cfgs []HwTaskConfig) error {
	if len(cfgs) > MaxHwTasks {
		return fmt.Errorf("%d hw-tasks, at most %d allowed", len(cfgs), MaxHwTasks)
	}

	for _, tc := range cfgs {
		t, err := b.buildHwTask(l, tc)
		if err != nil {
			return fmt.Errorf("hw-task %s: %w", tc.Name, err)
		}

		l.hwTasks = append(l.hwTasks, t)
		l.byID[t.ID()] = t
	}

	return nil
}

func (b Builder) buildHwTask(l *SysLayout, tc HwTaskConfig) (*hwtask.HwTask, error) {
	if _, found := l.byID[tc.ID]; found {
		return nil, fmt.Errorf("id %d used twice", tc.ID)
	}

	pi := l.partitionIndex(tc.Partition)
	if pi < 0 {
		return nil, fmt.Errorf("%w %s", ErrUnknownPartition, tc.Partition)
	}

	timeout := b.defaultTimeout
	if tc.Timeout != "" {
		d, err := time.ParseDuration(tc.Timeout)
		if err != nil {
			return nil, fmt.Errorf("bad timeout: %w", err)
		}
		timeout = d
	}

	sizes := make([]uint64, 0, len(tc.Buffers))
	for _, s := range tc.Buffers {
		size, err := units.RAMInBytes(s)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("bad buffer size %q", s)
		}
		sizes = append(sizes, uint64(size))
	}

	p := l.partitions[pi]
	bits := make([]hw.Bitstream, p.NumSlots())
	for si := range bits {
		path := filepath.Join(b.root, tc.Bits, p.Name(),
			fmt.Sprintf("%s_s%d.bin", tc.Name, si))

		bs, err := b.loader.Load(path, hw.BitstreamTarget{
			HwTask:    tc.Name,
			HwID:      tc.ID,
			Partition: pi,
			Slot:      si,
		})
		if err != nil {
			return nil, err
		}
		bits[si] = bs
	}

	return hwtask.New(tc.ID, tc.Name, pi, bits, sizes, timeout)
}

func (l *SysLayout) partitionIndex(name string) int {
	return slices.IndexFunc(l.partitions, func(p *partition.Partition) bool {
		return p.Name() == name
	})
}

// HwTask returns the hardware task with the given id.
func (l *SysLayout) HwTask(id uint32) (*hwtask.HwTask, bool) {
	t, found := l.byID[id]
	return t, found
}

// HwTasks returns every hardware task in definition order.
func (l *SysLayout) HwTasks() []*hwtask.HwTask {
	return l.hwTasks
}

// NumPartitions returns the number of partitions.
func (l *SysLayout) NumPartitions() int {
	return len(l.partitions)
}

// Partition returns the partition at index i.
func (l *SysLayout) Partition(i int) *partition.Partition {
	return l.partitions[i]
}

// Partitions returns every partition in definition order.
func (l *SysLayout) Partitions() []*partition.Partition {
	return l.partitions
}

// RegisterSlots registers the slots and timers of every partition with the
// engine.
func (l *SysLayout) RegisterSlots(engine timing.Engine) {
	for _, p := range l.partitions {
		p.RegisterSlots(engine)
	}
}

// Print writes the partitions and hardware tasks.
func (l *SysLayout) Print(w io.Writer) {
	for _, p := range l.partitions {
		p.Print(w)
	}

	for _, t := range l.hwTasks {
		fmt.Fprintf(w, "hw-task %d : %s using %d buffers : partition %s\n",
			t.ID(), t.Name(), len(t.BufferSizes()),
			l.partitions[t.Partition()].Name())
	}
}

// Close releases the drivers of every slot.
func (l *SysLayout) Close() error {
	var errs []error
	for _, c := range l.closers {
		errs = append(errs, c.Close())
	}
	l.closers = nil

	return errors.Join(errs...)
}
