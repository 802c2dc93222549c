package intake

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionStore(client, ttl), mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	sess := Session{
		Flow:    FlowTriage,
		Step:    1,
		Patient: PatientData{Age: intPtr(38), WeightKg: floatPtr(112), Conditions: []string{"diabetes"}},
	}
	require.NoError(t, store.Put(ctx, "5217712345678", sess))

	got, err := store.Get(ctx, "5217712345678")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestRedisSessionStoreUnknownContactIsIdle(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)

	got, err := store.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, got.Idle())
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	require.NoError(t, store.Put(ctx, "c1", Session{Flow: FlowBooking}))
	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Idle())
}

func TestRedisSessionStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, 0)

	require.NoError(t, store.Put(ctx, "c1", Session{Flow: FlowBooking}))
	require.NoError(t, store.Delete(ctx, "c1"))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Idle())
}

func TestRedisSessionStoreCorruptPayload(t *testing.T) {
	store, mr := newTestRedisStore(t, 0)
	require.NoError(t, mr.Set(sessionKey("c1"), "not-json"))

	_, err := store.Get(context.Background(), "c1")
	assert.Error(t, err)
}

func TestNewRedisSessionStoreNilClientPanics(t *testing.T) {
	assert.Panics(t, func() { NewRedisSessionStore(nil, 0) })
}
