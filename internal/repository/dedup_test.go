package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memEventStore struct {
	processed map[string]bool
	err       error
}

func newMemEventStore() *memEventStore {
	return &memEventStore{processed: map[string]bool{}}
}

func (s *memEventStore) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.processed[eventID], nil
}

func (s *memEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	if s.err != nil {
		return s.err
	}
	if s.processed[eventID] {
		return ErrEventAlreadyProcessed
	}
	s.processed[eventID] = true
	return nil
}

func newTestDeduper(t *testing.T, store *memEventStore) (*Deduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDeduper(rdb, store, zap.NewNop()), mr
}

func TestDeduperUnmarkedRedeliveryGetsThrough(t *testing.T) {
	store := newMemEventStore()
	d, _ := newTestDeduper(t, store)
	ctx := context.Background()

	// first delivery checks, then processing fails before Mark
	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	// the redelivery must not be reported seen: nothing was handled yet
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestDeduperMarkPrimesHint(t *testing.T) {
	store := newMemEventStore()
	d, _ := newTestDeduper(t, store)
	ctx := context.Background()

	require.NoError(t, d.Mark(ctx, "evt_1"))

	// the hint alone answers, even with the durable store unreachable
	store.err = errors.New("store down")
	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestDeduperEvictedHintDegradesToStore(t *testing.T) {
	store := newMemEventStore()
	d, mr := newTestDeduper(t, store)
	ctx := context.Background()

	require.NoError(t, d.Mark(ctx, "evt_1"))
	mr.FlushAll()

	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestDeduperRedisDownFallsBack(t *testing.T) {
	store := newMemEventStore()
	store.processed["evt_1"] = true
	d, mr := newTestDeduper(t, store)
	mr.Close()

	seen, err := d.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestDeduperMarkDuplicate(t *testing.T) {
	store := newMemEventStore()
	d, _ := newTestDeduper(t, store)
	ctx := context.Background()

	require.NoError(t, d.Mark(ctx, "evt_1"))
	require.ErrorIs(t, d.Mark(ctx, "evt_1"), ErrEventAlreadyProcessed)
}
