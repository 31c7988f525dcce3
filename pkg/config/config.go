package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

type RedisConfig struct {
	Host     string `validate:"required"`
	Port     int    `validate:"min=1,max=65535"`
	DB       int    `validate:"min=0"`
	UserName string
	Password string
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type Config struct {
	Redis RedisConfig

	// Stream is the stream key consumed and produced to
	Stream string `validate:"required"`
	// Group is the consumer group name
	Group string `validate:"required"`
	// ConsumerID identifies this member within the group; it must be stable across restarts
	// for the backlog replay to find its own pending entries.
	ConsumerID string `validate:"required"`

	Timeout     time.Duration `validate:"gt=0"`
	FetchSize   int           `validate:"min=1"`
	Concurrency int           `validate:"min=1"`
	Block       time.Duration `validate:"gt=0"`
	IdleBackoff time.Duration `validate:"gt=0"`

	// MaxLen approximately trims the stream on append; 0 disables trimming
	MaxLen int64 `validate:"min=0"`

	// BindAddr serves health, stats and metrics; empty disables the HTTP server
	BindAddr string

	// EnableProfiling serves pprof on BindAddr under /debug
	EnableProfiling bool

	// EnableTracing enables distributed tracing
	EnableTracing bool

	// JaegerEndpoint is the endpoint of the Jaeger collector
	JaegerEndpoint string

	// TraceSampleRatio is the fraction of root traces recorded when tracing is enabled
	TraceSampleRatio float64 `validate:"gte=0,lte=1"`
}

func NewConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		Stream:         "streammin",
		Group:          "streammin-workers",
		ConsumerID:     uuid.New().String(),
		Timeout:        30 * time.Second,
		FetchSize:      1,
		Concurrency:    5,
		Block:          time.Second,
		IdleBackoff:    time.Second,
		MaxLen:         0,
		BindAddr:       "0.0.0.0:8000",
		EnableTracing:  false,
		JaegerEndpoint: "",

		TraceSampleRatio: 1,
	}
}

var validate = validator.New()

// Validate returns every problem found; an empty slice means the config is usable.
func (c *Config) Validate() []error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("invalid %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err)
		}
	}
	if c.Concurrency > 0 && c.FetchSize > c.Concurrency*100 {
		errs = append(errs, fmt.Errorf("fetch-size %d is far beyond concurrency %d; fetched entries would idle in the pool queue", c.FetchSize, c.Concurrency))
	}
	return errs
}

// AddFlags adds flags to the specified FlagSet
func (c *Config) AddFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.Redis.Host, "redis-host", configParameter.Redis.Host, "Redis host.")
	fs.IntVar(&c.Redis.Port, "redis-port", configParameter.Redis.Port, "Redis port.")
	fs.IntVar(&c.Redis.DB, "redis-db", configParameter.Redis.DB, "Redis database index.")
	fs.StringVar(&c.Redis.UserName, "redis-username", configParameter.Redis.UserName, "Redis ACL username.")
	fs.StringVar(&c.Redis.Password, "redis-password", configParameter.Redis.Password, "Redis password.")
	fs.StringVar(&c.Stream, "stream", configParameter.Stream, "The stream key to consume from and produce to.")
	fs.StringVar(&c.Group, "group", configParameter.Group, "The consumer group name.")
	fs.StringVar(&c.ConsumerID, "consumer-id", configParameter.ConsumerID, "This consumer's id within the group. Keep it stable across restarts to replay its backlog.")
	fs.DurationVar(&c.Timeout, "timeout", configParameter.Timeout, "How long an entry may stay pending before another consumer reclaims it.")
	fs.IntVar(&c.FetchSize, "fetch-size", configParameter.FetchSize, "Entries requested per read and per pending scan page.")
	fs.IntVar(&c.Concurrency, "concurrency", configParameter.Concurrency, "Maximum number of handlers running at once.")
	fs.DurationVar(&c.Block, "block", configParameter.Block, "How long a read for new entries blocks.")
	fs.DurationVar(&c.IdleBackoff, "idle-backoff", configParameter.IdleBackoff, "Sleep between pending scans when nothing is pending.")
	fs.Int64Var(&c.MaxLen, "max-len", configParameter.MaxLen, "Approximate stream length cap applied on append (0 disables).")
	fs.StringVar(&c.BindAddr, "bind-addr", configParameter.BindAddr, "The bind address used to serve health, stats and metrics. Empty disables it.")
	fs.BoolVar(&c.EnableProfiling, "enable-profiling", configParameter.EnableProfiling, "Serve pprof under /debug on the bind address.")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", configParameter.EnableTracing, "Enable distributed tracing.")
	fs.StringVar(&c.JaegerEndpoint, "jaeger-endpoint", configParameter.JaegerEndpoint, "The endpoint of the Jaeger collector.")
	fs.Float64Var(&c.TraceSampleRatio, "trace-sample-ratio", configParameter.TraceSampleRatio, "Fraction of root traces recorded when tracing is enabled, between 0 and 1.")
}
