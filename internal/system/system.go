// Package system assembles a scheduler with null drivers from a
// configuration.
package system

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/devcfg"
	"github.com/fredsys/fred/hw/nulldrv"
	"github.com/fredsys/fred/layout"
	"github.com/fredsys/fred/metrics"
	"github.com/fredsys/fred/scheduler"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/tracing"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// System is a scheduler wired to its layout, its drivers and its observers.
type System struct {
	Engine    timing.Engine
	Fabric    *nulldrv.Fabric
	Layout    *layout.SysLayout
	Devcfg    *devcfg.Device
	Scheduler *scheduler.Scheduler
	Alloc     *nulldrv.Allocator
	Registry  *prometheus.Registry
	Metrics   *metrics.SchedMetrics
	Stats     *tracing.StatsTracer
	Tracer    *tracing.RequestTracer
}

// LoadLayout reads the layout configuration, from the TOML layout file when
// one is set and from the arch and hw-task files otherwise.
func LoadLayout(fs afero.Fs, cfg *config.Config) (*layout.Config, error) {
	if cfg.LayoutFile == "" {
		return layout.ReadTokens(fs, cfg.Root, cfg.ArchFile, cfg.HwTasksFile)
	}

	path := cfg.LayoutFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Root, path)
	}

	return layout.ReadTOML(fs, path)
}

// Build creates the system described by cfg on engine. Every finished
// execution is also handed to the given recorders.
func Build(
	fs afero.Fs,
	engine timing.Engine,
	cfg *config.Config,
	logger log.FieldLogger,
	recorders ...tracing.Recorder,
) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.StandardLogger()
	}

	mode, _ := cfg.SchedulerMode()
	search, _ := cfg.SearchPolicy()
	limit, _ := cfg.MemoryLimitBytes()

	lc, err := LoadLayout(fs, cfg)
	if err != nil {
		return nil, err
	}

	s := &System{
		Engine: engine,
		Fabric: nulldrv.NewFabric(fs, logger),
		Alloc:  nulldrv.NewAllocator(limit),
	}

	s.Layout, err = layout.MakeBuilder().
		WithRoot(cfg.Root).
		WithEngine(engine).
		WithDriverFactory(s.Fabric).
		WithBitstreamLoader(s.Fabric).
		WithDefaultTimeout(cfg.Timeout).
		WithLogger(logger).
		Build(lc)
	if err != nil {
		return nil, err
	}

	s.Layout.RegisterSlots(engine)

	s.Devcfg = devcfg.New(
		nulldrv.NewReconfigDriver(s.Fabric, cfg.Throughput), logger)
	s.Devcfg.Attach(engine)

	s.Scheduler = scheduler.MakeBuilder().
		WithEngine(engine).
		WithPartitions(s.Layout).
		WithDevcfg(s.Devcfg).
		WithMode(mode).
		WithSearchPolicy(search).
		WithHwIDCheck(cfg.CheckHwID).
		WithLogger(logger).
		Build()

	s.Registry = prometheus.NewRegistry()
	s.Metrics = metrics.New(s.Registry)
	s.Scheduler.AcceptHook(s.Metrics)

	s.Stats = tracing.NewStatsTracer()
	s.Tracer = tracing.CollectTrace(s.Scheduler,
		append([]tracing.Recorder{s.Stats}, recorders...)...)

	logger.Infof("scheduler ready: mode %s, search %s, %d partitions",
		mode, search, s.Layout.NumPartitions())

	return s, nil
}

// Close releases the drivers.
func (s *System) Close() error {
	var errs []error
	if s.Layout != nil {
		errs = append(errs, s.Layout.Close())
	}

	if s.Devcfg != nil {
		errs = append(errs, s.Devcfg.Close())
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing system: %w", err)
	}

	return nil
}
