package consumer

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"StreamMin-Cli/pkg/clients"
	"StreamMin-Cli/pkg/config"
	"StreamMin-Cli/pkg/messaging"
)

// OptionsFromConfig maps the tuning fields of cfg onto Options. Tracer and Metrics are left
// for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:     cfg.Timeout,
		FetchSize:   cfg.FetchSize,
		Concurrency: cfg.Concurrency,
		Block:       cfg.Block,
		IdleBackoff: cfg.IdleBackoff,
	}
}

// NewFromRedis opens the two redis connections a consumer needs and builds it with the
// stream, group and id from cfg.
func NewFromRedis(cfg *config.Config, handler Handler, opts Options) (*Consumer, error) {
	mainCli, err := clients.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect main redis client: %w", err)
	}
	secondaryCli, err := clients.NewRedisClient(cfg.Redis)
	if err != nil {
		_ = mainCli.Close()
		return nil, fmt.Errorf("connect secondary redis client: %w", err)
	}
	c, err := newWithClients(cfg, handler, opts, mainCli, secondaryCli)
	if err != nil {
		_ = errors.Join(mainCli.Close(), secondaryCli.Close())
		return nil, err
	}
	return c, nil
}

func newWithClients(cfg *config.Config, handler Handler, opts Options, mainCli, secondaryCli *redis.Client) (*Consumer, error) {
	main, err := messaging.NewRedisStreamsWithClient(mainCli, cfg.Stream, cfg.MaxLen)
	if err != nil {
		return nil, err
	}
	secondary, err := messaging.NewRedisStreamsWithClient(secondaryCli, cfg.Stream, cfg.MaxLen)
	if err != nil {
		return nil, err
	}
	return New(cfg.ConsumerID, cfg.Stream, cfg.Group, handler, opts, main, secondary)
}
