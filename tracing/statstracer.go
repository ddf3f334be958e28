package tracing

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"
)

// HwTaskStats summarizes the executions of one hardware task.
type HwTaskStats struct {
	HwTask          string        `json:"hw_task"`
	Executions      uint64        `json:"executions"`
	Overruns        uint64        `json:"overruns"`
	Rcfgs           uint64        `json:"rcfgs"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	MaxResponseTime time.Duration `json:"max_response_time"`
	AvgExecTime     time.Duration `json:"avg_exec_time"`
	AvgRcfgTime     time.Duration `json:"avg_rcfg_time"`
}

// StatsTracer keeps running averages per hardware task. It can be read
// while the engine is running.
type StatsTracer struct {
	lock  sync.Mutex
	stats map[string]*HwTaskStats
}

// NewStatsTracer creates an empty StatsTracer.
func NewStatsTracer() *StatsTracer {
	return &StatsTracer{stats: make(map[string]*HwTaskStats)}
}

// Record adds an execution to the averages of its hardware task.
func (t *StatsTracer) Record(e Execution) {
	t.lock.Lock()
	defer t.lock.Unlock()

	s, ok := t.stats[e.HwTask]
	if !ok {
		s = &HwTaskStats{HwTask: e.HwTask}
		t.stats[e.HwTask] = s
	}

	response := e.ResponseTime()
	s.AvgResponseTime = average(s.AvgResponseTime, response, s.Executions)
	s.AvgExecTime = average(s.AvgExecTime, e.ExecTime(), s.Executions)
	s.MaxResponseTime = max(s.MaxResponseTime, response)
	s.Executions++

	if e.Overrun() {
		s.Overruns++
	}

	if !e.Skipped {
		s.AvgRcfgTime = average(s.AvgRcfgTime, e.RcfgTime(), s.Rcfgs)
		s.Rcfgs++
	}
}

// Stats returns a copy of the statistics, sorted by hardware task name.
func (t *StatsTracer) Stats() []HwTaskStats {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]HwTaskStats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}

	slices.SortFunc(out, func(a, b HwTaskStats) int {
		return cmp.Compare(a.HwTask, b.HwTask)
	})

	return out
}

// Print writes one line per hardware task.
func (t *StatsTracer) Print(w io.Writer) {
	for _, s := range t.Stats() {
		fmt.Fprintf(w,
			"%-16s execs %6d  overruns %4d  rcfgs %6d  "+
				"resp avg %v max %v  exec avg %v  rcfg avg %v\n",
			s.HwTask, s.Executions, s.Overruns, s.Rcfgs,
			s.AvgResponseTime, s.MaxResponseTime, s.AvgExecTime, s.AvgRcfgTime)
	}
}

func average(avg, sample time.Duration, n uint64) time.Duration {
	return time.Duration(
		(float64(avg)*float64(n) + float64(sample)) / float64(n+1))
}
