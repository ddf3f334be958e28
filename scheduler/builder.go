package scheduler

import (
	"github.com/fredsys/fred/partition"
	"github.com/fredsys/fred/sim/hooking"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// Builder can build schedulers.
type Builder struct {
	engine     timing.TimeTeller
	partitions PartitionTable
	devcfg     ReconfigDevice
	mode       Mode
	search     partition.SearchPolicy
	checkHwID  bool
	logger     log.FieldLogger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		mode:   Normal,
		search: partition.SearchFirst,
		logger: log.StandardLogger(),
	}
}

// WithEngine sets the clock requests are stamped with.
func (b Builder) WithEngine(engine timing.TimeTeller) Builder {
	b.engine = engine
	return b
}

// WithPartitions sets the partitions to schedule on.
func (b Builder) WithPartitions(partitions PartitionTable) Builder {
	b.partitions = partitions
	return b
}

// WithDevcfg sets the reconfiguration device.
func (b Builder) WithDevcfg(d ReconfigDevice) Builder {
	b.devcfg = d
	return b
}

// WithMode sets the scheduling mode.
func (b Builder) WithMode(mode Mode) Builder {
	b.mode = mode
	return b
}

// WithSearchPolicy sets how slots are picked within a partition.
func (b Builder) WithSearchPolicy(policy partition.SearchPolicy) Builder {
	b.search = policy
	return b
}

// WithHwIDCheck makes the scheduler verify the id reported by each slot
// after reconfiguration.
func (b Builder) WithHwIDCheck(check bool) Builder {
	b.checkHwID = check
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger log.FieldLogger) Builder {
	b.logger = logger
	return b
}

// Build creates the scheduler and makes it the listener of every slot, every
// timer and the reconfiguration device.
func (b Builder) Build() *Scheduler {
	if b.engine == nil || b.partitions == nil || b.devcfg == nil {
		panic("scheduler needs an engine, partitions and a devcfg")
	}

	s := &Scheduler{
		HookableBase: hooking.NewHookableBase(),
		engine:       b.engine,
		partitions:   b.partitions,
		devcfg:       b.devcfg,
		mode:         b.mode,
		search:       b.search,
		checkHwID:    b.checkHwID,
		logger:       b.logger.WithField("component", "scheduler"),
	}

	for i := 0; i < b.partitions.NumPartitions(); i++ {
		p := b.partitions.Partition(i)
		for j := 0; j < p.NumSlots(); j++ {
			p.Slot(j).SetListener(s)
			p.Timer(j).SetListener(s)
		}
	}

	b.devcfg.AttachScheduler(s)

	return s
}
