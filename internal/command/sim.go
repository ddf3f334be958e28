package command

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/datarecording"
	"github.com/fredsys/fred/internal/system"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newSimCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Simulate cyclic clients on null drivers in virtual time",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, _ []string) error {
			config.BindCommandToViper(c)

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(c.Context(),
				syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
			defer stop()

			return simulate(ctx, c, cfg, log.StandardLogger())
		},
	}

	config.AddLayoutFlagsToCommand(cmd, cfg)
	config.AddSchedulerFlagsToCommand(cmd, cfg)
	config.AddSimFlagsToCommand(cmd, &cfg.Sim)

	return cmd
}

func simulate(
	ctx context.Context,
	c *cobra.Command,
	cfg *config.Config,
	logger log.FieldLogger,
) error {
	engine := timing.NewSerialEngine()

	var recorders []tracing.Recorder
	var dbTracer *tracing.DBTracer
	var recorder datarecording.DataRecorder

	if !cfg.Sim.NoTrace {
		recorder = datarecording.New(cfg.Sim.Trace)
		defer recorder.Close()

		dbTracer = tracing.NewDBTracer(recorder)
		recorders = append(recorders, dbTracer)
	}

	sys, err := system.Build(afero.NewOsFs(), engine, cfg, logger, recorders...)
	if err != nil {
		return err
	}
	defer sys.Close()

	report, err := system.RunSim(ctx, sys, engine, &cfg.Sim, logger)
	if err != nil {
		return err
	}

	if dbTracer != nil {
		dbTracer.Terminate()
		logger.Infof("traced %d executions", dbTracer.Count())
	}

	out := c.OutOrStdout()
	report.Print(out)
	sys.Stats.Print(out)
	sys.Scheduler.Print(out)

	return nil
}
