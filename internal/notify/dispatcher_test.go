package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcapture/internal/dto"
	"leadcapture/internal/model"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
}

func (s *flakySender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("upstream 502")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func testConfig() Config {
	return Config{Attempts: 3, Delay: time.Millisecond, Backoff: 2, FailureBuffer: 4}
}

func sample() (model.Registration, model.Event) {
	reg := model.Registration{
		EventID:     "evt-1",
		PhoneNumber: "9000000001",
		Name:        "Asha",
		Selection:   model.Multiple("Solar", "Gym"),
	}
	event := model.Event{ID: "evt-1", Name: "Expo"}
	return reg, event
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "919000000001", NormalizeRecipient("9000000001", "91"))
	assert.Equal(t, "919000000001", NormalizeRecipient("+919000000001", "91"))
	assert.Equal(t, "919000000001", NormalizeRecipient("919000000001", "91"))
	assert.Equal(t, "19000000001", NormalizeRecipient(" 9000000001 ", "1"))
}

func TestCompose(t *testing.T) {
	log := zerolog.Nop()
	d := NewDispatcher(&flakySender{}, testConfig(), &log)
	reg, event := sample()

	msg := d.Compose(reg, event)
	assert.Equal(t, Message{
		Recipient: "919000000001",
		Template:  "thankyou",
		Params:    []string{"Asha", "Expo", "Solar, Gym"},
	}, msg)

	reg.Selection = model.Single("Tower A")
	assert.Equal(t, "Tower A", d.Compose(reg, event).Params[2])
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{failures: 2}
	d := NewDispatcher(sender, testConfig(), &log)
	reg, event := sample()

	require.NoError(t, d.Notify(context.Background(), reg, event))
	assert.Equal(t, 3, sender.calls)
	assert.Len(t, sender.sent, 1)

	select {
	case f := <-d.Failures():
		t.Fatalf("unexpected failure report: %+v", f)
	default:
	}
}

func TestNotifyGivesUpAndReports(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{failures: 100}
	d := NewDispatcher(sender, testConfig(), &log)
	reg, event := sample()

	err := d.Notify(context.Background(), reg, event)
	require.Error(t, err)
	assert.Equal(t, 3, sender.calls)

	select {
	case f := <-d.Failures():
		assert.Equal(t, "evt-1", f.EventID)
		assert.Equal(t, "9000000001", f.PhoneNumber)
		assert.Equal(t, "919000000001", f.Recipient)
		assert.Equal(t, 3, f.Attempts)
		assert.NotEmpty(t, f.Error)
	default:
		t.Fatal("expected a failure report")
	}
}

func TestNotifyFullFailureChannelDoesNotBlock(t *testing.T) {
	log := zerolog.Nop()
	cfg := testConfig()
	cfg.Attempts = 1
	cfg.FailureBuffer = 1
	d := NewDispatcher(&flakySender{failures: 100}, cfg, &log)
	reg, event := sample()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Notify(context.Background(), reg, event)
		_ = d.Notify(context.Background(), reg, event)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full failure channel")
	}
	assert.Len(t, d.Failures(), 1)
}

func TestHTTPSender(t *testing.T) {
	var (
		gotAuth string
		gotMsg  Message
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret-token", time.Second)
	msg := Message{Recipient: "919000000001", Template: ThankYouTemplate, Params: []string{"Asha", "Expo", "A"}}
	require.NoError(t, s.Send(context.Background(), msg))

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, msg, gotMsg)
}

func TestHTTPSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewHTTPSender(srv.URL, "", time.Second).Send(context.Background(), Message{})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "quota exceeded")
}

func TestDispatcherAgainstServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	log := zerolog.Nop()
	d := NewDispatcher(NewHTTPSender(srv.URL, "t", time.Second), testConfig(), &log)
	reg, event := sample()

	require.NoError(t, d.Notify(context.Background(), reg, event))
	assert.Equal(t, int32(2), hits.Load())
}

type capturePublisher struct {
	key  string
	body []byte
}

func (p *capturePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.key = routingKey
	p.body = body
	return nil
}

func TestQueueEnqueue(t *testing.T) {
	pub := &capturePublisher{}
	reg, event := sample()

	require.NoError(t, NewQueue(pub, "registration.accepted").Enqueue(context.Background(), reg, event))
	assert.Equal(t, "registration.accepted", pub.key)

	var msg dto.NotificationMessage
	require.NoError(t, json.Unmarshal(pub.body, &msg))
	assert.Equal(t, dto.NotificationMessage{EventID: "evt-1", PhoneNumber: "9000000001"}, msg)
}

func TestInlineEnqueue(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{}
	d := NewDispatcher(sender, testConfig(), &log)
	reg, event := sample()

	require.NoError(t, NewInline(d).Enqueue(context.Background(), reg, event))
	assert.Eventually(t, func() bool {
		sender.mu.Lock()
		defer sender.mu.Unlock()
		return len(sender.sent) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyNoDelayAfterLastAttempt(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{failures: 100}
	cfg := Config{Attempts: 2, Delay: 150 * time.Millisecond, Backoff: 1, FailureBuffer: 1}
	d := NewDispatcher(sender, cfg, &log)
	reg, event := sample()

	start := time.Now()
	require.Error(t, d.Notify(context.Background(), reg, event))
	elapsed := time.Since(start)

	assert.Equal(t, 2, sender.calls)
	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, elapsed, 290*time.Millisecond)
}

func TestNotifyCancelledContextStopsEarly(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{}
	cfg := Config{Attempts: 3, Delay: 200 * time.Millisecond, Backoff: 2, FailureBuffer: 1}
	d := NewDispatcher(sender, cfg, &log)
	reg, event := sample()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := d.Notify(ctx, reg, event)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sender.calls)

	select {
	case f := <-d.Failures():
		assert.Equal(t, 0, f.Attempts)
	default:
		t.Fatal("expected a failure report")
	}
}

func TestInlineWait(t *testing.T) {
	log := zerolog.Nop()
	sender := &flakySender{failures: 1}
	d := NewDispatcher(sender, Config{Attempts: 2, Delay: 20 * time.Millisecond, Backoff: 1}, &log)
	reg, event := sample()

	inline := NewInline(d)
	require.NoError(t, inline.Enqueue(context.Background(), reg, event))
	inline.Wait()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 1)
}
