// Package monitoring serves the state of a running scheduler over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/fredsys/fred/metrics"
	"github.com/fredsys/fred/monitoring/web"
	"github.com/fredsys/fred/scheduler"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/tracing"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// DefaultQueryTimeout bounds how long a request waits for the engine to read
// the scheduler state.
const DefaultQueryTimeout = 2 * time.Second

var errEngineBusy = errors.New("engine did not answer in time")

// engineQuery runs fn on the engine thread and closes done afterwards.
type engineQuery struct {
	fn   func()
	done chan struct{}
}

// Monitor turns a running scheduler into an HTTP server. Everything the
// scheduler owns is read from the engine thread. The engine must accept
// Schedule calls from other goroutines.
type Monitor struct {
	engine       timing.Engine
	sched        SchedulerState
	partitions   scheduler.PartitionTable
	hwTasks      HwTaskTable
	stats        *tracing.StatsTracer
	gatherer     prometheus.Gatherer
	portNumber   int
	openBrowser  bool
	queryTimeout time.Duration
	logger       log.FieldLogger

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		queryTimeout: DefaultQueryTimeout,
		logger:       log.StandardLogger(),
	}
}

// WithPortNumber sets the port number of the monitor. Zero picks a free
// port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.logger.Warnf("monitor port %d is not allowed, using a random port",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor in a web browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithQueryTimeout sets how long a request waits for the engine.
func (m *Monitor) WithQueryTimeout(d time.Duration) *Monitor {
	m.queryTimeout = d
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger log.FieldLogger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that drives the scheduler.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterScheduler registers the scheduler and the partitions it drives.
func (m *Monitor) RegisterScheduler(
	s SchedulerState,
	partitions scheduler.PartitionTable,
) {
	m.sched = s
	m.partitions = partitions
}

// RegisterHwTasks registers the hardware task table.
func (m *Monitor) RegisterHwTasks(t HwTaskTable) {
	m.hwTasks = t
}

// RegisterStats registers the per hardware task statistics.
func (m *Monitor) RegisterStats(s *tracing.StatsTracer) {
	m.stats = s
}

// RegisterGatherer exposes the metrics of g under /metrics.
func (m *Monitor) RegisterGatherer(g prometheus.Gatherer) {
	m.gatherer = g
}

// Handle runs an engine query.
func (m *Monitor) Handle(event any) error {
	q, ok := event.(*engineQuery)
	if !ok {
		return fmt.Errorf("monitor cannot handle %T", event)
	}

	q.fn()
	close(q.done)

	return nil
}

// Router returns the routes served by the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/scheduler", m.listScheduler)
	r.HandleFunc("/api/hwtasks", m.listHwTasks)
	r.HandleFunc("/api/hwtask/{id:[0-9]+}", m.hwTaskDetails)
	r.HandleFunc("/api/stats", m.listStats)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(m.gatherer))
	}

	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(web.Handler())

	return r
}

// StartServer listens on the configured port and serves in the background.
// It returns the URL of the monitor.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.logger.Infof("monitoring scheduler with %s", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Errorf("monitor: %v", err)
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.logger.Warnf("monitor: cannot open browser: %v", err)
		}
	}

	return url, nil
}

// Close stops the server.
func (m *Monitor) Close() error {
	if m.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return m.server.Shutdown(ctx)
}

// onEngine runs fn on the engine thread and waits for it.
func (m *Monitor) onEngine(ctx context.Context, fn func()) error {
	q := &engineQuery{fn: fn, done: make(chan struct{})}

	m.engine.Schedule(timing.ScheduledEvent{
		Event:   q,
		Time:    m.engine.CurrentTime(),
		Handler: m,
	})

	ctx, cancel := context.WithTimeout(ctx, m.queryTimeout)
	defer cancel()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return errEngineBusy
	}
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprintf(w, "{\"now\":%.10f}", m.engine.CurrentTime().Seconds())
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	m.logger.Info("engine paused from monitor")
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	m.logger.Info("engine continued from monitor")
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) listScheduler(w http.ResponseWriter, r *http.Request) {
	if m.sched == nil {
		http.NotFound(w, r)
		return
	}

	var v schedulerView
	err := m.onEngine(r.Context(), func() {
		v = viewScheduler(
			m.engine.CurrentTime().Seconds(), m.sched, m.partitions)
	})

	m.writeJSON(w, v, err)
}

func (m *Monitor) listHwTasks(w http.ResponseWriter, r *http.Request) {
	if m.hwTasks == nil {
		http.NotFound(w, r)
		return
	}

	views := []hwTaskView{}
	err := m.onEngine(r.Context(), func() {
		for _, t := range m.hwTasks.HwTasks() {
			views = append(views, viewHwTask(t))
		}
	})

	m.writeJSON(w, views, err)
}

func (m *Monitor) hwTaskDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil || m.hwTasks == nil {
		http.NotFound(w, r)
		return
	}

	t, found := m.hwTasks.HwTask(uint32(id))
	if !found {
		http.NotFound(w, r)
		return
	}

	buf := bytes.NewBuffer(nil)
	var serr error
	err = m.onEngine(r.Context(), func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(t)
		serializer.SetMaxDepth(2)
		serr = serializer.Serialize(buf)
	})

	if err == nil {
		err = serr
	}

	if err != nil {
		m.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) listStats(w http.ResponseWriter, r *http.Request) {
	if m.stats == nil {
		http.NotFound(w, r)
		return
	}

	m.writeJSON(w, m.stats.Stats(), nil)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.fail(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		m.fail(w, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	}, nil)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		m.fail(w, err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		m.fail(w, err)
		return
	}

	m.writeJSON(w, prof, nil)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		m.fail(w, err)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (m *Monitor) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, errEngineBusy) {
		code = http.StatusServiceUnavailable
	}

	m.logger.Warnf("monitor: %v", err)
	http.Error(w, err.Error(), code)
}
