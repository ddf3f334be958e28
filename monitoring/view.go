package monitoring

import (
	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/scheduler"
)

// SchedulerState is the part of the scheduler the monitor reads.
type SchedulerState interface {
	Mode() scheduler.Mode
	FRIQueue() []*accel.Request
}

// HwTaskTable looks up hardware tasks.
type HwTaskTable interface {
	HwTask(id uint32) (*hwtask.HwTask, bool)
	HwTasks() []*hwtask.HwTask
}

type requestView struct {
	ID        string  `json:"id"`
	HwTask    string  `json:"hw_task"`
	Slot      int     `json:"slot"`
	Timestamp float64 `json:"timestamp"`
	SkipRcfg  bool    `json:"skip_rcfg"`
}

type slotView struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	HwTask  string `json:"hw_task,omitempty"`
	Request string `json:"request,omitempty"`
}

type partitionView struct {
	Name     string     `json:"name"`
	Index    int        `json:"index"`
	QueueLen int        `json:"queue_len"`
	Slots    []slotView `json:"slots"`
}

type schedulerView struct {
	Now        float64         `json:"now"`
	Mode       string          `json:"mode"`
	FRIQueue   []requestView   `json:"fri_queue"`
	Partitions []partitionView `json:"partitions"`
}

type hwTaskView struct {
	ID        uint32  `json:"id"`
	Name      string  `json:"name"`
	Partition int     `json:"partition"`
	Buffers   int     `json:"buffers"`
	Timeout   float64 `json:"timeout"`
	Banned    bool    `json:"banned"`
}

func viewRequest(req *accel.Request) requestView {
	v := requestView{
		ID:        req.ID(),
		Slot:      req.Slot(),
		Timestamp: req.Timestamp().Seconds(),
		SkipRcfg:  req.SkipRcfg(),
	}

	if t := req.HwTask(); t != nil {
		v.HwTask = t.Name()
	}

	return v
}

func viewScheduler(
	now float64,
	s SchedulerState,
	parts scheduler.PartitionTable,
) schedulerView {
	v := schedulerView{
		Now:      now,
		Mode:     s.Mode().String(),
		FRIQueue: []requestView{},
	}

	for _, req := range s.FRIQueue() {
		v.FRIQueue = append(v.FRIQueue, viewRequest(req))
	}

	for i := 0; i < parts.NumPartitions(); i++ {
		p := parts.Partition(i)
		pv := partitionView{
			Name:     p.Name(),
			Index:    p.Index(),
			QueueLen: p.QueueLen(),
		}

		for j := 0; j < p.NumSlots(); j++ {
			sl := p.Slot(j)
			sv := slotView{Name: sl.Name(), State: sl.State().String()}

			if t := sl.HwTask(); t != nil {
				sv.HwTask = t.Name()
			}

			if req := sl.Current(); req != nil {
				sv.Request = req.ID()
			}

			pv.Slots = append(pv.Slots, sv)
		}

		v.Partitions = append(v.Partitions, pv)
	}

	return v
}

func viewHwTask(t *hwtask.HwTask) hwTaskView {
	return hwTaskView{
		ID:        t.ID(),
		Name:      t.Name(),
		Partition: t.Partition(),
		Buffers:   len(t.BufferSizes()),
		Timeout:   t.Timeout().Seconds(),
		Banned:    t.Banned(),
	}
}
