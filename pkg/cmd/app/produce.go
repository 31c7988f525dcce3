package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"StreamMin-Cli/pkg/config"
	"StreamMin-Cli/pkg/producer"
)

func newProduceCommand(cfg *config.Config) *cobra.Command {
	var body, header string
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Append one message to the stream",
		Example: `  streammin produce --body '{"orderId":42}'
  streammin produce --body '{"orderId":42}' --header '{"source":"cli"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, h, err := parseMessageFlags(body, header)
			if err != nil {
				return err
			}
			p, err := producer.NewFromRedis(cfg)
			if err != nil {
				return err
			}
			defer p.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			id, err := p.Produce(ctx, b, h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("produced"), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&body, "body", "{}", "message body as a JSON object")
	cmd.Flags().StringVar(&header, "header", "", "message header as a JSON object")
	return cmd
}

func parseMessageFlags(body, header string) (map[string]interface{}, map[string]interface{}, error) {
	var b map[string]interface{}
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, nil, fmt.Errorf("--body must be a JSON object: %w", err)
	}
	if b == nil {
		return nil, nil, fmt.Errorf("--body must be a JSON object")
	}
	var h map[string]interface{}
	if header != "" {
		if err := json.Unmarshal([]byte(header), &h); err != nil {
			return nil, nil, fmt.Errorf("--header must be a JSON object: %w", err)
		}
	}
	return b, h, nil
}
