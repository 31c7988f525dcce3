package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"StreamMin-Cli/pkg/config"
	"StreamMin-Cli/pkg/consumer"
	"StreamMin-Cli/pkg/interfaces/api"
	"StreamMin-Cli/pkg/observability"
)

const serviceName = "streammin"

func newConsumeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run a consumer that logs every message it receives",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsumer(ctx, cfg, logHandler)
		},
	}
}

func logHandler(ctx context.Context, msg *consumer.Message) error {
	klog.InfoS("message received", "id", msg.ID, "header", msg.Header, "body", msg.Body)
	return nil
}

// runConsumer runs one consumer, plus its HTTP surface when cfg.BindAddr is set, until ctx
// is done.
func runConsumer(ctx context.Context, cfg *config.Config, handler consumer.Handler) error {
	if cfg.EnableTracing {
		klog.InfoS("Distributed tracing enabled", "jaegerEndpoint", cfg.JaegerEndpoint)
		shutdown, err := observability.InitTracerProvider(observability.TracingOptions{
			ServiceName:    serviceName,
			InstanceID:     cfg.ConsumerID,
			Stream:         cfg.Stream,
			JaegerEndpoint: cfg.JaegerEndpoint,
			SampleRatio:    cfg.TraceSampleRatio,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracer provider: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				klog.ErrorS(err, "Failed to shutdown tracer provider")
			}
		}()
	}

	reg := prometheus.NewRegistry()
	opts := consumer.OptionsFromConfig(cfg)
	opts.Metrics = observability.NewPrometheusMetrics(reg, serviceName)

	c, err := consumer.NewFromRedis(cfg, handler, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			klog.Errorf("close consumer: %v", err)
		}
	}()
	c.OnError(func(err error, msg *consumer.Message) {
		klog.Warningf("message %s failed: %v", msg.ID, err)
	})

	klog.Infof("consumer %s joining group %s on stream %s", cfg.ConsumerID, cfg.Group, cfg.Stream)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Start(gctx) })
	if cfg.BindAddr != "" {
		router := api.NewRouter(api.Options{
			Stream:      statsView{c},
			Group:       cfg.Group,
			Pool:        c.Pool(),
			Gatherer:    reg,
			Tracing:     cfg.EnableTracing,
			ServiceName: serviceName,
			Profiling:   cfg.EnableProfiling,
		})
		g.Go(func() error { return api.Serve(gctx, cfg.BindAddr, router) })
	}
	err = g.Wait()
	klog.Infof("See you next time!")
	klog.Flush()
	return err
}

// statsView adapts a consumer to api.StatsSource.
type statsView struct{ c *consumer.Consumer }

func (s statsView) Stats(ctx context.Context, group string) (int64, int64, error) {
	return s.c.Stats(ctx)
}
