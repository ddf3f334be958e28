package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/fredsys/fred/partition"
	"github.com/fredsys/fred/scheduler"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCommand(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use: "fred",
		PreRunE: func(c *cobra.Command, _ []string) error {
			BindCommandToViper(c)
			return nil
		},
		RunE: func(*cobra.Command, []string) error { return nil },
	}

	AddLoggingFlagsToCommand(cmd, &cfg.Logging)
	AddLayoutFlagsToCommand(cmd, cfg)
	AddSchedulerFlagsToCommand(cmd, cfg)
	AddServeFlagsToCommand(cmd, &cfg.Serve)
	AddSimFlagsToCommand(cmd, &cfg.Sim)

	return cmd
}

var _ = Describe("Config", func() {
	var (
		dir string
		cfg *Config
		cmd *cobra.Command
	)

	run := func(args ...string) {
		cmd.SetArgs(args)
		Expect(cmd.Execute()).To(Succeed())
	}

	BeforeEach(func() {
		viper.Reset()
		dir = GinkgoT().TempDir()
		cfg = &Config{}
		cmd = newTestCommand(cfg)
	})

	AfterEach(func() {
		os.Unsetenv("FRED_MODE")
		os.Unsetenv("FRED_LOG_LEVEL")
		viper.Reset()
	})

	It("should use the defaults", func() {
		Expect(Init(dir)).To(Succeed())
		run()

		Expect(cfg.Root).To(Equal(Root))
		Expect(cfg.ArchFile).To(Equal(ArchFile))
		Expect(cfg.HwTasksFile).To(Equal(HwTasksFile))
		Expect(cfg.Timeout).To(Equal(time.Second))
		Expect(cfg.Mode).To(Equal("normal"))
		Expect(cfg.Search).To(Equal("first"))
		Expect(cfg.Serve.SocketPath).To(Equal("/tmp/fred_sock"))
		Expect(cfg.Logging.Output).To(Equal("stderr"))
		Expect(cfg.Sim.Clients).To(Equal(1))
		Expect(cfg.Validate()).To(Succeed())
		Expect(ConfigFile()).To(BeEmpty())
	})

	It("should read the clickhouse trace settings", func() {
		os.Setenv("FRED_CLICKHOUSE_DB", "traces")
		defer os.Unsetenv("FRED_CLICKHOUSE_DB")

		Expect(Init(dir)).To(Succeed())
		run("--clickhouse", "localhost:9000")

		Expect(cfg.Serve.ClickHouse).To(Equal("localhost:9000"))
		Expect(cfg.Serve.ClickHouseDatabase).To(Equal("traces"))
		Expect(cfg.Serve.ClickHouseUser).To(Equal(ClickHouseUser))
	})

	It("should read the environment", func() {
		os.Setenv("FRED_MODE", "always-rcfg")
		os.Setenv("FRED_LOG_LEVEL", "debug")

		Expect(Init(dir)).To(Succeed())
		run()

		Expect(cfg.Mode).To(Equal("always-rcfg"))
		Expect(cfg.Logging.Level).To(Equal("debug"))

		mode, err := cfg.SchedulerMode()
		Expect(err).NotTo(HaveOccurred())
		Expect(mode).To(Equal(scheduler.AlwaysRcfg))
	})

	It("should prefer the command line to the environment", func() {
		os.Setenv("FRED_MODE", "always-rcfg")

		Expect(Init(dir)).To(Succeed())
		run("--mode", "normal")

		Expect(cfg.Mode).To(Equal("normal"))
	})

	It("should read fred.toml", func() {
		toml := "search = \"random\"\ntimeout = \"2s\"\ncheck-hwid = true\n"
		Expect(os.WriteFile(filepath.Join(dir, "fred.toml"), []byte(toml), 0o644)).
			To(Succeed())

		Expect(Init(dir)).To(Succeed())
		run()

		Expect(cfg.Search).To(Equal("random"))
		Expect(cfg.Timeout).To(Equal(2 * time.Second))
		Expect(cfg.CheckHwID).To(BeTrue())
		Expect(ConfigFile()).To(Equal(filepath.Join(dir, "fred.toml")))

		policy, err := cfg.SearchPolicy()
		Expect(err).NotTo(HaveOccurred())
		Expect(policy).To(Equal(partition.SearchRandom))
	})

	It("should report a broken fred.toml", func() {
		Expect(os.WriteFile(filepath.Join(dir, "fred.toml"), []byte("search = "), 0o644)).
			To(Succeed())

		Expect(Init(dir)).NotTo(Succeed())
	})

	It("should reject bad values", func() {
		Expect(Init(dir)).To(Succeed())

		run("--mode", "eager")
		Expect(cfg.Validate()).NotTo(Succeed())

		run("--mode", "normal", "--mem-limit", "lots")
		Expect(cfg.Validate()).NotTo(Succeed())

		run("--mem-limit", "1MiB", "--timeout", "0s")
		Expect(cfg.Validate()).NotTo(Succeed())
	})

	It("should parse the memory limit", func() {
		cfg.MemoryLimit = "256MiB"

		n, err := cfg.MemoryLimitBytes()

		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(256 << 20)))
	})
})

var _ = Describe("Logging", func() {
	var logger *log.Logger

	BeforeEach(func() {
		logger = log.New()
	})

	It("should configure level and format", func() {
		err := configureLogger(logger,
			&Logging{Level: "debug", Format: LogFormatJSON, Output: "stdout"})

		Expect(err).NotTo(HaveOccurred())
		Expect(logger.GetLevel()).To(Equal(log.DebugLevel))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&log.JSONFormatter{}))
	})

	It("should reject unknown formats and levels", func() {
		Expect(configureLogger(logger,
			&Logging{Level: "info", Format: "xml", Output: "stderr"})).
			To(MatchError(ContainSubstring("xml")))

		Expect(configureLogger(logger,
			&Logging{Level: "loud", Format: LogFormatText, Output: "stderr"})).
			NotTo(Succeed())
	})

	It("should require an output", func() {
		Expect(configureLogger(logger, &Logging{Level: "info"})).
			To(MatchError(ErrLogOutputRequired))
	})

	It("should mirror to a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "fred.log")

		Expect(configureLogger(logger,
			&Logging{Level: "info", Format: LogFormatText, Output: path})).
			To(Succeed())
		logger.Info("hello")

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.Contains(data, []byte("hello"))).To(BeTrue())
	})
})
