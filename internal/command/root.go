// Package command builds the cobra commands of the fred binary.
package command

import (
	"fmt"

	"github.com/fredsys/fred/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the fred command and its subcommands.
func NewRootCommand() (*cobra.Command, error) {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:           "fred",
		Short:         "FRED - FPGA reconfiguration scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			config.BindCommandToViper(cmd)

			if err := config.ConfigureLogging(&cfg.Logging); err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}

			if f := config.ConfigFile(); f != "" {
				log.Infof("using config file %s", f)
			}

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	config.AddLoggingFlagsToCommand(cmd, &cfg.Logging)

	cmd.AddCommand(newServeCommand(cfg))
	cmd.AddCommand(newSimCommand(cfg))
	cmd.AddCommand(newLayoutCommand(cfg))
	cmd.AddCommand(newTraceCommand())
	cmd.AddCommand(newVersionCommand())

	cobra.OnInitialize(initConfig)

	return cmd, nil
}

func initConfig() {
	if err := config.Init(); err != nil {
		log.Warn(err)
	}
}
