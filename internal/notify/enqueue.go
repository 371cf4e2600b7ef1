package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"leadcapture/internal/dto"
	"leadcapture/internal/model"
)

// Inline dispatches on a fresh goroutine. Used when no broker is configured.
type Inline struct {
	d  *Dispatcher
	wg sync.WaitGroup
}

func NewInline(d *Dispatcher) *Inline {
	return &Inline{d: d}
}

func (i *Inline) Enqueue(ctx context.Context, reg model.Registration, event model.Event) error {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		_ = i.d.Notify(ctx, reg, event)
	}()
	return nil
}

// Wait blocks until every dispatch started by Enqueue has finished.
func (i *Inline) Wait() {
	i.wg.Wait()
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Queue hands accepted registrations to the broker; the consumer worker
// performs the actual dispatch.
type Queue struct {
	pub        Publisher
	routingKey string
}

func NewQueue(pub Publisher, routingKey string) *Queue {
	return &Queue{pub: pub, routingKey: routingKey}
}

func (q *Queue) Enqueue(ctx context.Context, reg model.Registration, event model.Event) error {
	payload, err := json.Marshal(dto.NotificationMessage{
		EventID:     event.ID,
		PhoneNumber: reg.PhoneNumber,
	})
	if err != nil {
		return fmt.Errorf("marshal notification message: %w", err)
	}
	return q.pub.Publish(ctx, q.routingKey, payload)
}
