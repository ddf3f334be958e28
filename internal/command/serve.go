package command

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fredsys/fred/client"
	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/datarecording"
	"github.com/fredsys/fred/internal/system"
	"github.com/fredsys/fred/monitoring"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sw-task clients on a unix socket",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, _ []string) error {
			config.BindCommandToViper(c)

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(),
				syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log.StandardLogger())
		},
	}

	config.AddLayoutFlagsToCommand(cmd, cfg)
	config.AddSchedulerFlagsToCommand(cmd, cfg)
	config.AddServeFlagsToCommand(cmd, &cfg.Serve)

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger log.FieldLogger) error {
	engine := timing.NewRealTimeEngine(logger)

	var recorders []tracing.Recorder

	if cfg.Serve.ClickHouse != "" {
		backend, err := datarecording.NewClickHouse(datarecording.ClickHouseOptions{
			Addr:     cfg.Serve.ClickHouse,
			Database: cfg.Serve.ClickHouseDatabase,
			Username: cfg.Serve.ClickHouseUser,
			Password: cfg.Serve.ClickHousePassword,
		})
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer backend.Close()

		recorders = append(recorders, tracing.NewDBTracer(backend))
	}

	sys, err := system.Build(afero.NewOsFs(), engine, cfg, logger, recorders...)
	if err != nil {
		return err
	}
	defer sys.Close()

	ln := client.NewListener(cfg.Serve.SocketPath,
		engine, sys.Scheduler, sys.Layout, sys.Alloc, logger)
	if err := ln.Listen(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer ln.Close()

	if cfg.Serve.Monitor {
		m := monitoring.NewMonitor().
			WithPortNumber(cfg.Serve.MonitorPort).
			WithBrowser(cfg.Serve.OpenBrowser).
			WithLogger(logger)
		m.RegisterEngine(engine)
		m.RegisterScheduler(sys.Scheduler, sys.Layout)
		m.RegisterHwTasks(sys.Layout)
		m.RegisterStats(sys.Stats)
		m.RegisterGatherer(sys.Registry)

		if _, err := m.StartServer(); err != nil {
			return err
		}
		defer m.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve(ctx)
	}()

	runErr := engine.Run(ctx)
	cancel()

	if err := <-serveErr; err != nil {
		logger.Errorf("serve: %v", err)
	}

	if runErr != nil {
		logger.Errorf("scheduler stopped: %v", runErr)
		return runErr
	}

	logger.Info("shutting down")

	return nil
}
