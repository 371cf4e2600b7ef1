package repo

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcapture/internal/model"
)

// unreachable redis: every call fails fast with a dial error
func deadRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCachedEventsFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	store := NewMemoryRepository()
	cached := NewCachedEvents(store, deadRedis(t), time.Minute, "", &log)

	require.NoError(t, cached.CreateEvent(ctx, &model.Event{ID: "e1", Name: "Expo"}))

	got, err := cached.GetEventByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "Expo", got.Name)

	_, err = cached.GetEventByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)

	all, err := cached.GetAllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCachedEventsKey(t *testing.T) {
	log := zerolog.Nop()
	c := NewCachedEvents(NewMemoryRepository(), nil, 0, "", &log)
	assert.Equal(t, "leadcapture:event:e1", c.key("e1"))
	assert.Equal(t, time.Hour, c.ttl)
}
