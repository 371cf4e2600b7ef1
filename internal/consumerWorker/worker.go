package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/wb-go/wbf/zlog"

	"leadcapture/internal/dto"
	"leadcapture/internal/model"
	"leadcapture/internal/repo"
)

var errStopping = errors.New("notification reader is stopping")

type Consumer interface {
	Consume(queue string, handler func([]byte) error) error
}

type RegistrationReader interface {
	GetRegistration(ctx context.Context, eventID, phone string) (*model.Registration, error)
}

type EventReader interface {
	Get(ctx context.Context, id string) (*model.Event, error)
}

type Notifier interface {
	Notify(ctx context.Context, reg model.Registration, event model.Event) error
}

// Reader turns queued notification messages into dispatcher calls.
type Reader struct {
	consumer Consumer
	queue    string
	regs     RegistrationReader
	events   EventReader
	notifier Notifier
	done     chan struct{}
	cancel   context.CancelFunc

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func NewReader(consumer Consumer, queue string, regs RegistrationReader, events EventReader, notifier Notifier) *Reader {
	return &Reader{
		consumer: consumer,
		queue:    queue,
		regs:     regs,
		events:   events,
		notifier: notifier,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	zlog.Logger.Info().Str("queue", r.queue).Msg("notification reader started")

	go func() {
		defer close(r.done)

		handler := func(body []byte) error {
			if !r.begin() {
				return errStopping
			}
			defer r.inflight.Done()
			return r.Handle(cctx, body)
		}

		if err := r.consumer.Consume(r.queue, handler); err != nil {
			zlog.Logger.Error().Err(err).Msg("Failed to start consuming")
			return
		}

		<-cctx.Done()
		zlog.Logger.Info().Msg("notification reader stopped by context")
	}()
}

// Handle processes one message. Returning an error requeues it, so only
// transient lookup failures do; undecodable messages and vanished records
// are dropped, and delivery failures are the dispatcher's business.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		zlog.Logger.Error().
			Err(err).
			Msgf("Failed to unmarshal message: %s", string(body))
		return nil
	}

	zlog.Logger.Info().
		Str("event_id", msg.EventID).
		Str("phone", msg.PhoneNumber).
		Msg("received notification message")

	reg, err := r.regs.GetRegistration(ctx, msg.EventID, msg.PhoneNumber)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			zlog.Logger.Warn().
				Str("event_id", msg.EventID).
				Str("phone", msg.PhoneNumber).
				Msg("registration for notification not found, skipping")
			return nil
		}
		zlog.Logger.Error().Err(err).Str("event_id", msg.EventID).Msg("Failed to get registration in worker")
		return err
	}

	event, err := r.events.Get(ctx, msg.EventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			zlog.Logger.Warn().Str("event_id", msg.EventID).Msg("event for notification not found, skipping")
			return nil
		}
		zlog.Logger.Error().Err(err).Str("event_id", msg.EventID).Msg("Failed to get event in worker")
		return err
	}

	// the message is acked once Handle returns, so delivery must not be cut
	// short by shutdown
	_ = r.notifier.Notify(context.WithoutCancel(ctx), *reg, *event)
	return nil
}

func (r *Reader) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Stop refuses new deliveries, which go back to the queue, and waits for the
// ones already being handled.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.inflight.Wait()
}
