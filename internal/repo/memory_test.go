package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcapture/internal/model"
)

func TestMemoryEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	ev := &model.Event{ID: "e1", Name: "One", SelectionSchema: model.SelectionSchema{Kind: model.BuilderChoice, Options: []string{"A"}}}

	require.NoError(t, m.CreateEvent(ctx, ev))
	assert.ErrorIs(t, m.CreateEvent(ctx, ev), ErrEventExists)

	got, err := m.GetEventByID(ctx, "e1")
	require.NoError(t, err)
	got.SelectionSchema.Options[0] = "mutated"

	again, err := m.GetEventByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "A", again.SelectionSchema.Options[0])

	_, err = m.GetEventByID(ctx, "e2")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMemoryConditionalPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.CreateEvent(ctx, &model.Event{ID: "e1"}))

	_, _, err := m.CreateRegistrationIfAbsent(ctx, &model.Registration{EventID: "missing", PhoneNumber: "9000000001"})
	assert.ErrorIs(t, err, ErrEventNotFound)

	first := &model.Registration{EventID: "e1", PhoneNumber: "9000000001", Name: "first", RegisteredAt: time.Unix(10, 0)}
	stored, created, err := m.CreateRegistrationIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "first", stored.Name)

	second := &model.Registration{EventID: "e1", PhoneNumber: "9000000001", Name: "second", RegisteredAt: time.Unix(20, 0)}
	stored, created, err = m.CreateRegistrationIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "first", stored.Name)
	assert.Equal(t, time.Unix(10, 0), stored.RegisteredAt)
}

func TestMemoryConcurrentPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.CreateEvent(ctx, &model.Event{ID: "e1"}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := m.CreateRegistrationIfAbsent(ctx, &model.Registration{EventID: "e1", PhoneNumber: "9000000001"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	n, err := m.CountRegistrations(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryListOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.CreateEvent(ctx, &model.Event{ID: "e1"}))

	for _, r := range []model.Registration{
		{EventID: "e1", PhoneNumber: "9000000003", RegisteredAt: time.Unix(5, 0)},
		{EventID: "e1", PhoneNumber: "9000000002", RegisteredAt: time.Unix(1, 0)},
		{EventID: "e1", PhoneNumber: "9000000001", RegisteredAt: time.Unix(5, 0)},
	} {
		r := r
		_, _, err := m.CreateRegistrationIfAbsent(ctx, &r)
		require.NoError(t, err)
	}

	regs, err := m.GetRegistrationsByEventID(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, "9000000002", regs[0].PhoneNumber)
	assert.Equal(t, "9000000001", regs[1].PhoneNumber)
	assert.Equal(t, "9000000003", regs[2].PhoneNumber)
}

func TestMemoryCanceledContext(t *testing.T) {
	m := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := m.CreateRegistrationIfAbsent(ctx, &model.Registration{EventID: "e1"})
	assert.ErrorIs(t, err, context.Canceled)
}
