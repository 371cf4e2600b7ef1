package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"leadcapture/internal/model"
)

// CachedEvents is a read-through Redis cache in front of an EventStore.
// Events never change after creation, so entries are only ever written,
// never invalidated. Redis failures degrade to reading the store.
type CachedEvents struct {
	EventStore
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *zerolog.Logger
}

func NewCachedEvents(store EventStore, rdb *redis.Client, ttl time.Duration, prefix string, log *zerolog.Logger) *CachedEvents {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix == "" {
		prefix = "leadcapture:event"
	}
	return &CachedEvents{EventStore: store, rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (c *CachedEvents) key(id string) string {
	return c.prefix + ":" + id
}

func (c *CachedEvents) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := c.EventStore.CreateEvent(ctx, e); err != nil {
		return err
	}
	c.store(ctx, e)
	return nil
}

func (c *CachedEvents) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	bs, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var e model.Event
		if jerr := json.Unmarshal(bs, &e); jerr == nil {
			return &e, nil
		}
		c.log.Warn().Str("event_id", id).Msg("cache: dropping undecodable event entry")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("event_id", id).Msg("cache: redis get failed")
	}

	e, err := c.EventStore.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, e)
	return e, nil
}

func (c *CachedEvents) store(ctx context.Context, e *model.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.SetEx(ctx, c.key(e.ID), payload, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("event_id", e.ID).Msg("cache: redis set failed")
	}
}
