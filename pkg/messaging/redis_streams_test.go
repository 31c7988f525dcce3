package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStream(t *testing.T) (*miniredis.Miniredis, *RedisStreams) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Skipf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rs, err := NewRedisStreamsWithClient(cli, "orders", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close(context.Background()) })
	return s, rs
}

// fakeRedis implements redisCommander for the error paths miniredis cannot produce.
type fakeRedis struct {
	createErr error
	closed    bool
	// idle is the per-entry idle time XClaim compares against MinIdle; a claim resets it.
	idle   map[string]time.Duration
	claims []*redis.XClaimArgs
}

func (f *fakeRedis) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.createErr != nil {
		cmd.SetErr(f.createErr)
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func (f *fakeRedis) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedis) XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	return redis.NewXPendingExtCmd(ctx)
}

func (f *fakeRedis) XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	f.claims = append(f.claims, a)
	cmd := redis.NewXMessageSliceCmd(ctx)
	var won []redis.XMessage
	for _, id := range a.Messages {
		idle, ok := f.idle[id]
		if !ok || idle < a.MinIdle {
			continue
		}
		f.idle[id] = 0
		won = append(won, redis.XMessage{ID: id, Values: map[string]interface{}{PayloadField: `{"header":{},"body":{}}`}})
	}
	cmd.SetVal(won)
	return cmd
}

func (f *fakeRedis) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeRedis) XLen(ctx context.Context, stream string) *redis.IntCmd {
	return redis.NewIntCmd(ctx)
}

func (f *fakeRedis) XPending(ctx context.Context, stream, group string) *redis.XPendingCmd {
	return redis.NewXPendingCmd(ctx)
}

func (f *fakeRedis) Close() error { f.closed = true; return nil }

func TestNewRedisStreamsWithClient_Validation(t *testing.T) {
	if _, err := NewRedisStreamsWithClient(nil, "k", 0); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisStreamsWithClient(&fakeRedis{}, "", 0); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestRedisStreams_EnsureGroupErrors(t *testing.T) {
	ctx := context.Background()

	busy := &fakeRedis{createErr: errors.New("BUSYGROUP Consumer Group name already exists")}
	rs, err := NewRedisStreamsWithClient(busy, "s", 0)
	require.NoError(t, err)
	require.NoError(t, rs.EnsureGroup(ctx, "g", ReadFromStart))

	broken := &fakeRedis{createErr: errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")}
	rs, err = NewRedisStreamsWithClient(broken, "s", 0)
	require.NoError(t, err)
	require.Error(t, rs.EnsureGroup(ctx, "g", ReadFromStart))
}

func TestRedisStreams_ReadGroupTimeoutIsEmpty(t *testing.T) {
	f := &fakeRedis{}
	rs, err := NewRedisStreamsWithClient(f, "s", 0)
	require.NoError(t, err)
	msgs, err := rs.ReadGroup(context.Background(), "g", "c", 1, time.Millisecond, ReadNew)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.NoError(t, rs.Ack(context.Background(), "g"))
	require.NoError(t, rs.Close(context.Background()))
	require.True(t, f.closed)
}

func TestRedisStreams_EnsureGroupIsIdempotent(t *testing.T) {
	_, rs := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))
}

func TestRedisStreams_AppendReadAck(t *testing.T) {
	_, rs := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))

	id, err := rs.Append(ctx, []byte(`{"header":{},"body":{"n":1}}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := rs.ReadGroup(ctx, "workers", "c1", 1, 10*time.Millisecond, ReadNew)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)
	require.JSONEq(t, `{"header":{},"body":{"n":1}}`, string(msgs[0].Payload))

	length, pending, err := rs.Stats(ctx, "workers")
	require.NoError(t, err)
	require.Equal(t, int64(1), length)
	require.Equal(t, int64(1), pending)

	pend, err := rs.Pending(ctx, "workers", PendingMin, PendingMax, 10)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	require.Equal(t, id, pend[0].ID)
	require.Equal(t, "c1", pend[0].Consumer)
	require.Equal(t, int64(1), pend[0].DeliveryCount)

	require.NoError(t, rs.Ack(ctx, "workers", id))
	// acking twice is harmless
	require.NoError(t, rs.Ack(ctx, "workers", id))

	pend, err = rs.Pending(ctx, "workers", PendingMin, PendingMax, 10)
	require.NoError(t, err)
	require.Empty(t, pend)
}

func TestRedisStreams_ReadGroupNothingNew(t *testing.T) {
	_, rs := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))

	msgs, err := rs.ReadGroup(ctx, "workers", "c1", 1, 20*time.Millisecond, ReadNew)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestRedisStreams_MissingPayloadFieldIsKept(t *testing.T) {
	s, rs := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))

	id, err := s.XAdd("orders", "*", []string{"other", "x"})
	require.NoError(t, err)

	msgs, err := rs.ReadGroup(ctx, "workers", "c1", 1, 10*time.Millisecond, ReadNew)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, id, msgs[0].ID)
	require.Nil(t, msgs[0].Payload)
}

func TestRedisStreams_ClaimTransfersOwnership(t *testing.T) {
	_, rs := newTestStream(t)
	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))

	id, err := rs.Append(ctx, []byte(`{"header":{},"body":{}}`))
	require.NoError(t, err)
	msgs, err := rs.ReadGroup(ctx, "workers", "crashed", 1, 10*time.Millisecond, ReadNew)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	time.Sleep(60 * time.Millisecond)

	won, err := rs.Claim(ctx, "workers", "rescuer", 20*time.Millisecond, id)
	require.NoError(t, err)
	require.Len(t, won, 1)
	require.Equal(t, id, won[0].ID)
	require.JSONEq(t, `{"header":{},"body":{}}`, string(won[0].Payload))

	pend, err := rs.Pending(ctx, "workers", PendingMin, PendingMax, 10)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	require.Equal(t, "rescuer", pend[0].Consumer)
}

func TestRedisStreams_ClaimHasSingleWinner(t *testing.T) {
	f := &fakeRedis{idle: map[string]time.Duration{"7-0": time.Minute}}
	rs, err := NewRedisStreamsWithClient(f, "orders", 0)
	require.NoError(t, err)
	ctx := context.Background()

	won, err := rs.Claim(ctx, "workers", "rescuer", 30*time.Second, "7-0")
	require.NoError(t, err)
	require.Len(t, won, 1)
	require.Equal(t, "7-0", won[0].ID)

	// the claim reset the idle time, so a second claimant gets an empty reply
	lost, err := rs.Claim(ctx, "workers", "latecomer", 30*time.Second, "7-0")
	require.NoError(t, err)
	require.Empty(t, lost)

	require.Len(t, f.claims, 2)
	require.Equal(t, "orders", f.claims[0].Stream)
	require.Equal(t, "rescuer", f.claims[0].Consumer)
	require.Equal(t, 30*time.Second, f.claims[1].MinIdle)
	require.Equal(t, []string{"7-0"}, f.claims[1].Messages)
}

func TestRedisStreams_ClaimWithoutIDsSkipsRedis(t *testing.T) {
	f := &fakeRedis{}
	rs, err := NewRedisStreamsWithClient(f, "orders", 0)
	require.NoError(t, err)
	msgs, err := rs.Claim(context.Background(), "workers", "rescuer", time.Second)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Empty(t, f.claims)
}

func TestRedisStreams_AppendTrimsWithMaxLen(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Skipf("start miniredis: %v", err)
	}
	defer s.Close()
	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rs, err := NewRedisStreamsWithClient(cli, "bounded", 2)
	require.NoError(t, err)
	defer rs.Close(context.Background())

	ctx := context.Background()
	require.NoError(t, rs.EnsureGroup(ctx, "workers", ReadFromStart))
	for i := 0; i < 5; i++ {
		_, err := rs.Append(ctx, []byte(`{"header":{},"body":{}}`))
		require.NoError(t, err)
	}
	length, pending, err := rs.Stats(ctx, "workers")
	require.NoError(t, err)
	require.Positive(t, length)
	require.LessOrEqual(t, length, int64(5))
	require.Zero(t, pending)
}
