package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	logLevelFlag    = "log-level"
	logFormatFlag   = "log-format"
	logOutputFlag   = "log-output"
	rootFlag        = "root"
	archFlag        = "arch"
	hwTasksFlag     = "hw-tasks"
	layoutFlag      = "layout"
	timeoutFlag     = "timeout"
	modeFlag        = "mode"
	searchFlag      = "search"
	checkHwIDFlag   = "check-hwid"
	throughputFlag  = "rcfg-throughput"
	memoryLimitFlag = "mem-limit"
	socketFlag      = "socket"
	monitorFlag     = "monitor"
	monitorPortFlag = "monitor-port"
	openBrowserFlag = "open-browser"
	chFlag          = "clickhouse"
	chDatabaseFlag  = "clickhouse-db"
	chUserFlag      = "clickhouse-user"
	chPasswordFlag  = "clickhouse-password"
	durationFlag    = "duration"
	periodFlag      = "period"
	execTimeFlag    = "exec-time"
	clientsFlag     = "clients"
	traceFlag       = "trace"
	noTraceFlag     = "no-trace"
)

// AddLoggingFlagsToCommand adds the logging flags to the persistent flags
// of cmd.
func AddLoggingFlagsToCommand(cmd *cobra.Command, cfg *Logging) {
	cmd.PersistentFlags().StringVar(&cfg.Level,
		logLevelFlag,
		"info",
		"The log level: trace, debug, info, warn or error.")

	cmd.PersistentFlags().StringVar(&cfg.Format,
		logFormatFlag,
		LogFormatText,
		"The log format: text or json.")

	cmd.PersistentFlags().StringVar(&cfg.Output,
		logOutputFlag,
		"stderr",
		"Where to log: stderr, stdout or a file path.")
}

// AddLayoutFlagsToCommand adds the flags describing the FPGA layout and the
// scheduler.
func AddLayoutFlagsToCommand(cmd *cobra.Command, cfg *Config) {
	cmd.Flags().StringVar(&cfg.Root,
		rootFlag,
		Root,
		"The FRED root directory.")

	cmd.Flags().StringVar(&cfg.ArchFile,
		archFlag,
		ArchFile,
		"The partition file, relative to the root.")

	cmd.Flags().StringVar(&cfg.HwTasksFile,
		hwTasksFlag,
		HwTasksFile,
		"The hw-task file, relative to the root.")

	cmd.Flags().StringVar(&cfg.LayoutFile,
		layoutFlag,
		"",
		"A TOML layout file used instead of the arch and hw-task files.")

	cmd.Flags().DurationVar(&cfg.Timeout,
		timeoutFlag,
		Timeout,
		"The timeout of hw-tasks that set none.")
}

// AddSchedulerFlagsToCommand adds the scheduling flags.
func AddSchedulerFlagsToCommand(cmd *cobra.Command, cfg *Config) {
	cmd.Flags().StringVar(&cfg.Mode,
		modeFlag,
		Mode,
		"The scheduling mode: normal or always-rcfg.")

	cmd.Flags().StringVar(&cfg.Search,
		searchFlag,
		Search,
		"The slot search policy: first or random.")

	cmd.Flags().BoolVar(&cfg.CheckHwID,
		checkHwIDFlag,
		false,
		"Check the id reported by a slot after each reconfiguration.")

	cmd.Flags().Uint64Var(&cfg.Throughput,
		throughputFlag,
		0,
		"Bytes per second of the null reconfiguration port, 0 for the default.")

	cmd.Flags().StringVar(&cfg.MemoryLimit,
		memoryLimitFlag,
		MemoryLimit,
		"The total size of the data buffers, e.g. 256MiB.")
}

// AddServeFlagsToCommand adds the flags of the serve command.
func AddServeFlagsToCommand(cmd *cobra.Command, cfg *Serve) {
	cmd.Flags().StringVar(&cfg.SocketPath,
		socketFlag,
		SocketPath,
		"The unix socket sw-task clients connect to.")

	cmd.Flags().BoolVar(&cfg.Monitor,
		monitorFlag,
		false,
		"Serve the monitoring web page and API.")

	cmd.Flags().IntVar(&cfg.MonitorPort,
		monitorPortFlag,
		0,
		"The port of the monitor, 0 for a random port.")

	cmd.Flags().BoolVar(&cfg.OpenBrowser,
		openBrowserFlag,
		false,
		"Open the monitor in a web browser.")

	cmd.Flags().StringVar(&cfg.ClickHouse,
		chFlag,
		"",
		"Trace executions to the ClickHouse server at this address.")

	cmd.Flags().StringVar(&cfg.ClickHouseDatabase,
		chDatabaseFlag,
		ClickHouseDatabase,
		"The ClickHouse database of the trace.")

	cmd.Flags().StringVar(&cfg.ClickHouseUser,
		chUserFlag,
		ClickHouseUser,
		"The ClickHouse user.")

	cmd.Flags().StringVar(&cfg.ClickHousePassword,
		chPasswordFlag,
		"",
		"The ClickHouse password.")
}

// AddSimFlagsToCommand adds the flags of the sim command.
func AddSimFlagsToCommand(cmd *cobra.Command, cfg *Sim) {
	cmd.Flags().DurationVar(&cfg.Duration,
		durationFlag,
		SimDuration,
		"How long to simulate.")

	cmd.Flags().DurationVar(&cfg.Period,
		periodFlag,
		SimPeriod,
		"The period of the cyclic clients.")

	cmd.Flags().DurationVar(&cfg.ExecTime,
		execTimeFlag,
		SimExecTime,
		"The latency of the null accelerators.")

	cmd.Flags().IntVar(&cfg.Clients,
		clientsFlag,
		1,
		"The number of cyclic clients per hw-task.")

	cmd.Flags().StringVar(&cfg.Trace,
		traceFlag,
		"",
		"The trace database name, without extension. Empty picks a unique name.")

	cmd.Flags().BoolVar(&cfg.NoTrace,
		noTraceFlag,
		false,
		"Do not record a trace.")
}

// BindCommandToViper lets viper values override the flags of cmd that were
// not set on the command line.
func BindCommandToViper(cmd *cobra.Command) {
	bindFlagsToViper(cmd.PersistentFlags())
	bindFlagsToViper(cmd.Flags())
}

func bindFlagsToViper(fs *pflag.FlagSet) {
	fs.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
		_ = viper.BindEnv(flag.Name)

		if !flag.Changed && viper.IsSet(flag.Name) {
			val := viper.Get(flag.Name)
			_ = fs.Set(flag.Name, fmt.Sprintf("%v", val))
		}
	})
}
