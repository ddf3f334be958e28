// Package metrics exports scheduler activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/scheduler"
	"github.com/fredsys/fred/sim/hooking"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedMetrics is a scheduler hook that counts requests, reconfigurations
// and overruns.
type SchedMetrics struct {
	pushed      *prometheus.CounterVec
	queued      *prometheus.CounterVec
	rcfg        prometheus.Counter
	rcfgSkipped prometheus.Counter
	rcfgSeconds prometheus.Histogram
	execSeconds *prometheus.HistogramVec
	overruns    *prometheus.CounterVec
	friDepth    prometheus.Gauge
	banned      prometheus.Gauge

	bannedIDs map[uint32]struct{}
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *SchedMetrics {
	f := promauto.With(reg)

	return &SchedMetrics{
		pushed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fred_requests_pushed_total",
			Help: "Acceleration requests pushed to the scheduler",
		}, []string{"partition"}),
		queued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fred_requests_queued_total",
			Help: "Requests that found every slot of their partition busy",
		}, []string{"partition"}),
		rcfg: f.NewCounter(prometheus.CounterOpts{
			Name: "fred_rcfg_total",
			Help: "Completed slot reconfigurations",
		}),
		rcfgSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "fred_rcfg_skipped_total",
			Help: "Requests started on a slot already holding their hw-task",
		}),
		rcfgSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fred_rcfg_seconds",
			Help:    "Duration of slot reconfigurations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		execSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fred_exec_seconds",
			Help:    "Execution time of completed requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"hw_task"}),
		overruns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fred_overruns_total",
			Help: "Requests that overran the timeout of their hw-task",
		}, []string{"hw_task"}),
		friDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "fred_fri_queue_depth",
			Help: "Requests waiting for the reconfiguration device",
		}),
		banned: f.NewGauge(prometheus.GaugeOpts{
			Name: "fred_banned_hw_tasks",
			Help: "Hw-tasks banned after an overrun",
		}),
		bannedIDs: make(map[uint32]struct{}),
	}
}

// Func updates the metrics from a scheduler step.
func (m *SchedMetrics) Func(ctx hooking.HookCtx) {
	info, ok := ctx.Detail.(scheduler.HookInfo)
	if !ok {
		return
	}

	req := ctx.Item.(*accel.Request)
	m.friDepth.Set(float64(info.FRIQueueLen))

	switch ctx.Pos {
	case scheduler.HookPosReqPushed:
		m.pushed.WithLabelValues(strconv.Itoa(info.Partition)).Inc()
	case scheduler.HookPosReqQueued:
		m.queued.WithLabelValues(strconv.Itoa(info.Partition)).Inc()
	case scheduler.HookPosRcfgSkipped:
		m.rcfgSkipped.Inc()
	case scheduler.HookPosRcfgDone:
		m.rcfg.Inc()
		m.rcfgSeconds.Observe(info.Elapsed.Seconds())
	case scheduler.HookPosComputeDone:
		m.execSeconds.WithLabelValues(req.HwTask().Name()).
			Observe(info.Elapsed.Seconds())
	case scheduler.HookPosTimeout:
		t := req.HwTask()
		m.overruns.WithLabelValues(t.Name()).Inc()
		m.bannedIDs[t.ID()] = struct{}{}
		m.banned.Set(float64(len(m.bannedIDs)))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
