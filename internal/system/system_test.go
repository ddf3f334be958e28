package system

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/scheduler"
	"github.com/fredsys/fred/sim/timing"
	"github.com/fredsys/fred/tracing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
)

type executionLog struct {
	executions []tracing.Execution
}

func (l *executionLog) Record(e tracing.Execution) {
	l.executions = append(l.executions, e)
}

func defaultConfig() *config.Config {
	return &config.Config{
		Root:        "/fredsys",
		ArchFile:    config.ArchFile,
		HwTasksFile: config.HwTasksFile,
		Timeout:     config.Timeout,
		Mode:        config.Mode,
		Search:      config.Search,
		MemoryLimit: "1MiB",
		Sim: config.Sim{
			Duration: time.Second,
			Period:   100 * time.Millisecond,
			ExecTime: 5 * time.Millisecond,
			Clients:  1,
		},
	}
}

var _ = Describe("System", func() {
	var (
		fs     afero.Fs
		engine *timing.SerialEngine
		cfg    *config.Config
	)

	write := func(path, content string) {
		Expect(afero.WriteFile(fs, path, []byte(content), 0o644)).To(Succeed())
	}

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		engine = timing.NewSerialEngine()
		cfg = defaultConfig()

		write("/fredsys/arch.csv", "vision 2\naudio 1\n")
		write("/fredsys/hw_tasks.csv",
			"aes 1 vision bits 4KiB\nsobel 2 vision bits\nfft 3 audio bits 1KiB,1KiB\n")
		write("/fredsys/layout.toml", `
[[partition]]
name = "audio"
slots = 1

[[hw_task]]
name = "fft"
id = 3
partition = "audio"
bits = "bits"
`)
		for _, f := range []string{
			"vision/aes_s0", "vision/aes_s1",
			"vision/sobel_s0", "vision/sobel_s1",
			"audio/fft_s0",
		} {
			write("/fredsys/bits/"+f+".bin", strings.Repeat("b", 100))
		}
	})

	It("should build from the token files", func() {
		s, err := Build(fs, engine, cfg, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Layout.NumPartitions()).To(Equal(2))
		Expect(s.Layout.HwTasks()).To(HaveLen(3))
		Expect(s.Scheduler.Mode()).To(Equal(scheduler.Normal))
		Expect(s.Close()).To(Succeed())
	})

	It("should build from a TOML layout", func() {
		cfg.LayoutFile = "layout.toml"
		cfg.Mode = "always-rcfg"

		s, err := Build(fs, engine, cfg, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Layout.NumPartitions()).To(Equal(1))
		Expect(s.Scheduler.Mode()).To(Equal(scheduler.AlwaysRcfg))
	})

	It("should fail on a bad configuration", func() {
		cfg.Search = "best"

		_, err := Build(fs, engine, cfg, nil)

		Expect(err).To(HaveOccurred())
	})

	It("should fail on a missing layout", func() {
		cfg.Root = "/nowhere"

		_, err := Build(fs, engine, cfg, nil)

		Expect(err).To(HaveOccurred())
	})

	It("should simulate cyclic clients", func() {
		trace := &executionLog{}
		s, err := Build(fs, engine, cfg, nil, trace)
		Expect(err).NotTo(HaveOccurred())

		report, err := RunSim(context.Background(), s, engine, &cfg.Sim, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Clients).To(HaveLen(3))
		Expect(engine.CurrentTime()).To(Equal(time.Second))

		totals := report.Totals()
		Expect(totals.Overruns).To(BeZero())
		Expect(totals.Done).To(BeNumerically(">=", 15))
		Expect(totals.Submitted - totals.Done).To(BeNumerically("<=", 3))
		for _, c := range report.Clients {
			Expect(c.Stats().Done).To(BeNumerically(">", 0))
		}

		Expect(trace.executions).To(HaveLen(totals.Done))

		var executions uint64
		for _, st := range s.Stats.Stats() {
			executions += st.Executions
		}
		Expect(executions).To(Equal(uint64(totals.Done)))

		n, err := testutil.GatherAndCount(s.Registry,
			"fred_rcfg_total", "fred_requests_pushed_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(3))

		Expect(s.Alloc.InUse()).To(BeZero())

		buf := new(bytes.Buffer)
		report.Print(buf)
		Expect(buf.String()).To(ContainSubstring("aes-0"))
		Expect(buf.String()).To(ContainSubstring("total"))
	})
})
