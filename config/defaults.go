package config

import "time"

const (
	// SocketPath is where sw-task clients connect.
	SocketPath = "/tmp/fred_sock"

	// Root is the FRED root directory holding the layout files and the
	// bitstreams.
	Root = "/fredsys/"

	// ArchFile lists the partitions, relative to Root.
	ArchFile = "arch.csv"

	// HwTasksFile lists the hardware tasks, relative to Root.
	HwTasksFile = "hw_tasks.csv"

	// Timeout is the execution timeout of hardware tasks that set none.
	Timeout = time.Second

	// Mode is the scheduling mode.
	Mode = "normal"

	// Search is the slot search policy.
	Search = "first"

	// MemoryLimit bounds the data buffers handed to clients.
	MemoryLimit = "256MiB"

	// SimDuration is how long the sim command runs in virtual time.
	SimDuration = 10 * time.Second

	// SimPeriod is the period of the cyclic clients of the sim command.
	SimPeriod = 100 * time.Millisecond

	// SimExecTime is the latency of null accelerators in the sim command.
	SimExecTime = 5 * time.Millisecond

	// ClickHouseDatabase and ClickHouseUser locate serve traces.
	ClickHouseDatabase = "default"
	ClickHouseUser     = "default"

	// DataFilePerm is the permission of the log file.
	DataFilePerm = 0o644
)
