package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyTTL = 24 * time.Hour

// processedStore is the durable record behind the Redis hint.
type processedStore interface {
	HasProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

// Deduper layers a Redis hint over the durable processed_events table. The
// Redis key is written only after the durable mark succeeds, so a cache hit
// always stands for a fully handled event. A delivery whose processing fails
// leaves no trace here and the redelivery gets through. Redis being down or
// losing the key only degrades to the durable check.
type Deduper struct {
	rdb    *redis.Client
	events processedStore
	log    *zap.Logger
}

func NewDeduper(rdb *redis.Client, events processedStore, log *zap.Logger) *Deduper {
	return &Deduper{rdb: rdb, events: events, log: log}
}

// Seen reports whether the event id was already fully handled.
func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	if d.rdb != nil {
		n, err := d.rdb.Exists(ctx, "evt:"+eventID).Result()
		if err != nil {
			d.log.Warn("redis dedup check failed, falling back to store",
				zap.String("event_id", eventID), zap.Error(err))
		} else if n > 0 {
			return true, nil
		}
	}
	return d.events.HasProcessed(ctx, eventID)
}

// Mark durably records the event id, then primes the Redis hint. A concurrent
// marker losing the unique insert gets ErrEventAlreadyProcessed.
func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	if err := d.events.MarkProcessed(ctx, eventID); err != nil {
		return err
	}
	if d.rdb != nil {
		if err := d.rdb.Set(ctx, "evt:"+eventID, 1, dedupKeyTTL).Err(); err != nil {
			d.log.Warn("redis dedup prime failed",
				zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return nil
}
