package system

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fredsys/fred/client"
	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/hw/nulldrv"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// SimRunner is an engine that can stop at a given virtual time.
type SimRunner interface {
	timing.Engine
	RunUntil(ctx context.Context, t time.Duration) error
}

// SimReport summarizes a simulation.
type SimReport struct {
	Duration time.Duration
	Clients  []*client.Cyclic
}

// Totals sums the counters of every client.
func (r *SimReport) Totals() client.CyclicStats {
	var total client.CyclicStats
	for _, c := range r.Clients {
		s := c.Stats()
		total.Submitted += s.Submitted
		total.Done += s.Done
		total.Overruns += s.Overruns
		total.Rejected += s.Rejected
	}

	return total
}

// Print writes one line per client and the totals.
func (r *SimReport) Print(w io.Writer) {
	fmt.Fprintf(w, "simulated %v\n", r.Duration)

	for _, c := range r.Clients {
		s := c.Stats()
		fmt.Fprintf(w, "%-20s submitted %6d  done %6d  overruns %4d  rejected %4d\n",
			c.Name(), s.Submitted, s.Done, s.Overruns, s.Rejected)
	}

	t := r.Totals()
	fmt.Fprintf(w, "%-20s submitted %6d  done %6d  overruns %4d  rejected %4d\n",
		"total", t.Submitted, t.Done, t.Overruns, t.Rejected)
}

// RunSim drives the system with cyclic clients, one group per hardware task,
// until the configured virtual time.
func RunSim(
	ctx context.Context,
	s *System,
	engine SimRunner,
	cfg *config.Sim,
	logger log.FieldLogger,
) (*SimReport, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	report := &SimReport{Duration: cfg.Duration}

	for _, t := range s.Layout.HwTasks() {
		s.Fabric.SetProfile(t.ID(), nulldrv.ExecProfile{Latency: cfg.ExecTime})

		for i := 0; i < cfg.Clients; i++ {
			c, err := client.NewCyclic(
				fmt.Sprintf("%s-%d", t.Name(), i),
				engine, s.Scheduler, s.Alloc,
				[]*hwtask.HwTask{t}, 0, cfg.Period, logger)
			if err != nil {
				closeClients(report.Clients)
				return nil, err
			}

			report.Clients = append(report.Clients, c)
		}
	}

	for _, c := range report.Clients {
		engine.RegisterHandler(c, timing.PriorityNormal, timing.Owned)
		c.Start()
	}

	logger.Infof("simulating %d clients for %v", len(report.Clients), cfg.Duration)

	err := engine.RunUntil(ctx, cfg.Duration)
	engine.Shutdown()

	return report, err
}

func closeClients(clients []*client.Cyclic) {
	for _, c := range clients {
		c.Close()
	}
}
