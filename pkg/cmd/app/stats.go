package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"StreamMin-Cli/pkg/config"
	"StreamMin-Cli/pkg/producer"
)

func newStatsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the stream length and the group's pending count",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := producer.NewFromRedis(cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			length, pending, err := p.Stats(ctx, cfg.Group)
			if err != nil {
				return fmt.Errorf("stats for group %s: %w", cfg.Group, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", color.CyanString("stream:"), cfg.Stream)
			fmt.Fprintf(out, "%s %d\n", color.CyanString("length:"), length)
			pendingText := color.GreenString("%d", pending)
			if pending > 0 {
				pendingText = color.YellowString("%d", pending)
			}
			fmt.Fprintf(out, "%s %s (group %s)\n", color.CyanString("pending:"), pendingText, cfg.Group)
			return nil
		},
	}
}
