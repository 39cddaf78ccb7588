package buffer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newRedisBuffer(t *testing.T) (*miniredis.Miniredis, *MessageBuffer) {
	t.Helper()
	mr, client := newMiniRedis(t)
	store, err := NewRedisStore(client)
	require.NoError(t, err)
	buf, err := NewMessageBuffer(store, Policy{}, WithClock(steppingClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 100*time.Millisecond)))
	require.NoError(t, err)
	return mr, buf
}

func TestMessageBufferEnqueueDrain(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, buf := newRedisBuffer(t)

	created, err := buf.Enqueue(ctx, "T", "lead-1", "Oi")
	require.NoError(t, err)
	assert.True(t, created)

	key, err := buf.Key("T", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "buffer:T:lead-1", key)
	assert.Equal(t, 8*time.Second, mr.TTL(key))

	created, err = buf.Enqueue(ctx, "T", "lead-1", "Vocês trabalham com X?")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 7*time.Second, mr.TTL(key))

	_, err = buf.Enqueue(ctx, "T", "lead-1", "Qual o valor?")
	require.NoError(t, err)

	text, err := buf.Drain(ctx, "T", "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Oi Vocês trabalham com X? Qual o valor?", text)
	assert.False(t, mr.Exists(key))

	text, err = buf.Drain(ctx, "T", "lead-1")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestMessageBufferKeysAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, buf := newRedisBuffer(t)

	_, err := buf.Enqueue(ctx, "T1", "lead", "primeiro")
	require.NoError(t, err)
	_, err = buf.Enqueue(ctx, "T2", "lead", "segundo")
	require.NoError(t, err)

	text, err := buf.Drain(ctx, "T1", "lead")
	require.NoError(t, err)
	assert.Equal(t, "primeiro", text)

	text, err = buf.Drain(ctx, "T2", "lead")
	require.NoError(t, err)
	assert.Equal(t, "segundo", text)
}

func TestMessageBufferRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, buf := newRedisBuffer(t)
	_, err := buf.Enqueue(context.Background(), "", "lead", "oi")
	assert.ErrorIs(t, err, ErrEmptyKey)
	_, err = buf.Drain(context.Background(), "T", " ")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestCombineOrdersByTimestamp(t *testing.T) {
	t.Parallel()

	entry := func(msg, ts string) string {
		raw, _ := json.Marshal(Entry{Message: msg, Timestamp: ts})
		return string(raw)
	}

	raw := []string{
		entry("segundo", "2026-01-01T10:00:02Z"),
		entry("  ", "2026-01-01T10:00:03Z"),
		entry("primeiro", "2026-01-01T10:00:01.5Z"),
		entry("terceiro", "2026-01-01T10:00:04Z"),
	}
	assert.Equal(t, "primeiro segundo terceiro", Combine(raw))
	assert.Equal(t, "texto solto", Combine([]string{"texto solto"}))
	assert.Empty(t, Combine(nil))
}

func TestCombineUntimedEntriesSortFirst(t *testing.T) {
	t.Parallel()

	entry := func(msg, ts string) string {
		raw, _ := json.Marshal(Entry{Message: msg, Timestamp: ts})
		return string(raw)
	}

	raw := []string{
		entry("c", "2026-01-01T10:00:03Z"),
		entry("x", ""),
		entry("a", "2026-01-01T10:00:01Z"),
		"solto",
		entry("b", "2026-01-01T10:00:02Z"),
		entry("y", "ontem"),
	}
	assert.Equal(t, "x solto y a b c", Combine(raw))
}
