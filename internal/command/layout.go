package command

import (
	"github.com/fredsys/fred/config"
	"github.com/fredsys/fred/internal/system"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newLayoutCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Parse the layout files and print the partitions and hw-tasks",
		Args:  cobra.NoArgs,
		PreRunE: func(c *cobra.Command, _ []string) error {
			config.BindCommandToViper(c)

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			sys, err := system.Build(afero.NewOsFs(),
				timing.NewSerialEngine(), cfg, log.StandardLogger())
			if err != nil {
				return err
			}
			defer sys.Close()

			sys.Layout.Print(c.OutOrStdout())

			return nil
		},
	}

	config.AddLayoutFlagsToCommand(cmd, cfg)
	config.AddSchedulerFlagsToCommand(cmd, cfg)

	return cmd
}
