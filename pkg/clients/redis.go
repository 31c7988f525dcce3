package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"StreamMin-Cli/pkg/config"
)

const pingTimeout = 2 * time.Second

// NewRedisClient builds a client from cfg and verifies it with PING. Every call returns a new
// connection pool; consumers need two of them so that a blocked XREADGROUP never holds up
// pending scans or acknowledgements.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.UserName,
		Password: cfg.Password,
		DB:       cfg.DB,
		// let a cancelled context interrupt a blocking read
		ContextTimeoutEnabled: true,
	})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}
	return cli, nil
}
