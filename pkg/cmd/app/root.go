package app

import (
	"errors"
	"flag"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"StreamMin-Cli/pkg/config"
)

// NewRootCommand creates the streammin command tree. All subcommands share one Config bound
// to persistent flags; values resolve as flag > environment > config file > default.
func NewRootCommand() *cobra.Command {
	cfg := config.NewConfig()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "streammin",
		Short: "Reliable consumer groups over Redis Streams",
		Long: `streammin produces to and consumes from a Redis stream through a consumer group.
Consumers replay their own unacknowledged entries on start, reclaim entries other
consumers left pending for too long, and acknowledge every entry after handling it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Resolve(cmd.Flags(), cfgFile); err != nil {
				return err
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				return errors.Join(errs...)
			}
			return nil
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVar(&cfgFile, config.ConfigFlag, "", "config file (yaml, json or toml) whose keys are flag names")
	cfg.AddFlags(pfs, cfg)

	local := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(local)
	pfs.AddGoFlagSet(local)

	cmd.AddCommand(
		newConsumeCommand(cfg),
		newProduceCommand(cfg),
		newStatsCommand(cfg),
	)
	return cmd
}
