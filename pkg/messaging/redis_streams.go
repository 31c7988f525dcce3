package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

// redisCommander abstracts the subset of go-redis client used by RedisStreams.
// It allows tests to inject a fake implementation without a real Redis server.
type redisCommander interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XLen(ctx context.Context, stream string) *redis.IntCmd
	XPending(ctx context.Context, stream, group string) *redis.XPendingCmd
	Close() error
}

// RedisStreams implements Stream using Redis Streams + Consumer Groups.
type RedisStreams struct {
	cli redisCommander
	key string
	// maxLen limits the stream length via XADD MAXLEN to avoid unbounded growth.
	// When <= 0, no trimming is applied.
	maxLen int64
}

// NewRedisStreamsWithClient builds a RedisStreams on key using the given go-redis client
// (or any compatible implementation). The stream takes ownership of the client and closes it on Close.
func NewRedisStreamsWithClient(cli redisCommander, key string, maxLen int64) (*RedisStreams, error) {
	if cli == nil {
		return nil, errors.New("redis client is nil")
	}
	if key == "" {
		return nil, errors.New("redis streams requires key")
	}
	return &RedisStreams{cli: cli, key: key, maxLen: maxLen}, nil
}

// Key returns the stream key.
func (r *RedisStreams) Key() string { return r.key }

func (r *RedisStreams) EnsureGroup(ctx context.Context, group, start string) error {
	if start == "" {
		start = ReadFromStart
	}
	err := r.cli.XGroupCreateMkStream(ctx, r.key, group, start).Err()
	if err == nil {
		return nil
	}
	if isBusyGroup(err) {
		klog.V(4).Infof("redis stream group already exists stream=%s group=%s", r.key, group)
		return nil
	}
	return err
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *RedisStreams) Append(ctx context.Context, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: r.key,
		ID:     "*",
		Values: map[string]interface{}{PayloadField: payload},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	return r.cli.XAdd(ctx, args).Result()
}

func (r *RedisStreams) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, from string) ([]Message, error) {
	if from == "" {
		from = ReadNew
	}
	// go-redis sends BLOCK for any non-negative duration and BLOCK 0 waits forever.
	if from != ReadNew || block <= 0 {
		block = -1
	}
	res, err := r.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{r.key, from},
		Count:    int64(count),
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	var msgs []Message
	for _, s := range res {
		for _, m := range s.Messages {
			msgs = append(msgs, r.toMessage(m))
		}
	}
	return msgs, nil
}

func (r *RedisStreams) Pending(ctx context.Context, group, start, end string, count int) ([]PendingMessageMetadata, error) {
	if start == "" {
		start = PendingMin
	}
	if end == "" {
		end = PendingMax
	}
	res, err := r.cli.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.key,
		Group:  group,
		Start:  start,
		End:    end,
		Count:  int64(count),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]PendingMessageMetadata, 0, len(res))
	for _, p := range res {
		out = append(out, PendingMessageMetadata{
			ID:            p.ID,
			Consumer:      p.Consumer,
			Idle:          p.Idle,
			DeliveryCount: p.RetryCount,
		})
	}
	return out, nil
}

func (r *RedisStreams) Claim(ctx context.Context, group, consumer string, minIdle time.Duration, ids ...string) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := r.cli.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	msgs := make([]Message, 0, len(res))
	for _, m := range res {
		msgs = append(msgs, r.toMessage(m))
	}
	return msgs, nil
}

func (r *RedisStreams) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.cli.XAck(ctx, r.key, group, ids...).Err()
}

func (r *RedisStreams) Close(ctx context.Context) error { return r.cli.Close() }

func (r *RedisStreams) Stats(ctx context.Context, group string) (int64, int64, error) {
	xl, err1 := r.cli.XLen(ctx, r.key).Result()
	xp, err2 := r.cli.XPending(ctx, r.key, group).Result()
	var cnt int64
	if err2 == nil && xp != nil {
		cnt = xp.Count
	}
	if err1 != nil {
		return 0, cnt, err1
	}
	if err2 != nil && !errors.Is(err2, redis.Nil) {
		return xl, 0, err2
	}
	return xl, cnt, nil
}

// toMessage keeps malformed entries so the caller's cursor still moves past them.
func (r *RedisStreams) toMessage(m redis.XMessage) Message {
	raw, ok := m.Values[PayloadField]
	if !ok {
		klog.Warningf("redis stream message missing payload field %q stream=%s id=%s", PayloadField, r.key, m.ID)
		return Message{ID: m.ID}
	}
	switch v := raw.(type) {
	case string:
		return Message{ID: m.ID, Payload: []byte(v)}
	case []byte:
		return Message{ID: m.ID, Payload: v}
	default:
		klog.Warningf("redis stream malformed payload type stream=%s id=%s type=%T", r.key, m.ID, v)
		return Message{ID: m.ID}
	}
}
