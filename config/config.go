// Package config holds the settings of the fred commands and binds them to
// flags, the environment and the fred.toml config file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fredsys/fred/partition"
	"github.com/fredsys/fred/scheduler"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that override flags.
const EnvPrefix = "FRED"

// Config holds the settings shared by all the commands.
type Config struct {
	Logging Logging

	Root        string
	ArchFile    string
	HwTasksFile string
	LayoutFile  string
	Timeout     time.Duration
	Mode        string
	Search      string
	CheckHwID   bool
	Throughput  uint64
	MemoryLimit string

	Serve Serve
	Sim   Sim
}

// Serve holds the settings of the serve command.
type Serve struct {
	SocketPath  string
	Monitor     bool
	MonitorPort int
	OpenBrowser bool

	// ClickHouse is the address of the server executions are traced to.
	// Tracing is off when empty.
	ClickHouse         string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
}

// Sim holds the settings of the sim command.
type Sim struct {
	Duration time.Duration
	Period   time.Duration
	ExecTime time.Duration
	Clients  int
	Trace    string
	NoTrace  bool
}

// SchedulerMode parses the scheduling mode.
func (c *Config) SchedulerMode() (scheduler.Mode, error) {
	return scheduler.ParseMode(c.Mode)
}

// SearchPolicy parses the slot search policy.
func (c *Config) SearchPolicy() (partition.SearchPolicy, error) {
	return partition.ParseSearchPolicy(c.Search)
}

// MemoryLimitBytes parses the memory limit, in binary units.
func (c *Config) MemoryLimitBytes() (uint64, error) {
	n, err := units.RAMInBytes(c.MemoryLimit)
	if err != nil {
		return 0, fmt.Errorf("memory limit: %w", err)
	}

	if n <= 0 {
		return 0, fmt.Errorf("memory limit %s must be positive", c.MemoryLimit)
	}

	return uint64(n), nil
}

// Validate checks the settings that are parsed later.
func (c *Config) Validate() error {
	if _, err := c.SchedulerMode(); err != nil {
		return err
	}

	if _, err := c.SearchPolicy(); err != nil {
		return err
	}

	if _, err := c.MemoryLimitBytes(); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout %v must be positive", c.Timeout)
	}

	return nil
}

// Init loads a .env file from the working directory, then makes viper read
// FRED_ environment variables and the first fred.toml found in configPaths.
// Neither file is required.
func Init(configPaths ...string) error {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetConfigType("toml")
	viper.SetConfigName("fred")

	if len(configPaths) == 0 {
		configPaths = []string{".", "$HOME/.config/fred/", "/etc/fred/"}
	}

	for _, p := range configPaths {
		viper.AddConfigPath(p)
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("reading config: %w", err)
	}

	return nil
}

// ConfigFile returns the config file viper read, if any.
func ConfigFile() string {
	f := viper.ConfigFileUsed()
	if f == "" {
		return ""
	}

	return filepath.Clean(f)
}
