// Package notify sends the post-registration "thank you" message.
//
// Delivery is best effort. A failed send never touches the registration; it is
// retried with exponential backoff and, once the attempts run out, logged and
// reported on the Failures channel for operators.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/retry"

	"leadcapture/internal/model"
)

const (
	ThankYouTemplate   = "thankyou"
	DefaultCountryCode = "91"
	nationalNumberLen  = 10
)

// Failure describes a notification that could not be delivered.
type Failure struct {
	EventID     string    `json:"event_id"`
	PhoneNumber string    `json:"phone_number"`
	Recipient   string    `json:"recipient"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

type Config struct {
	CountryCode   string
	Attempts      int
	Delay         time.Duration
	Backoff       float64
	FailureBuffer int
}

type Dispatcher struct {
	sender      Sender
	strategy    retry.Strategy
	countryCode string
	failures    chan Failure
	log         *zerolog.Logger
}

func NewDispatcher(sender Sender, cfg Config, log *zerolog.Logger) *Dispatcher {
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.Backoff < 1 {
		cfg.Backoff = 2
	}
	if cfg.FailureBuffer <= 0 {
		cfg.FailureBuffer = 64
	}
	return &Dispatcher{
		sender: sender,
		strategy: retry.Strategy{
			Attempts: cfg.Attempts,
			Delay:    cfg.Delay,
			Backoff:  cfg.Backoff,
		},
		countryCode: strings.TrimPrefix(cfg.CountryCode, "+"),
		failures:    make(chan Failure, cfg.FailureBuffer),
		log:         log,
	}
}

// Failures delivers one value per notification that exhausted its retries.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

// Compose builds the thank-you message for an accepted registration.
func (d *Dispatcher) Compose(reg model.Registration, event model.Event) Message {
	return Message{
		Recipient: NormalizeRecipient(reg.PhoneNumber, d.countryCode),
		Template:  ThankYouTemplate,
		Params:    []string{reg.Name, event.Name, reg.Selection.Render()},
	}
}

// Notify sends the thank-you message, retrying failed attempts. The returned
// error is informational; it has already been logged and reported. A
// cancelled ctx stops further attempts.
func (d *Dispatcher) Notify(ctx context.Context, reg model.Registration, event model.Event) error {
	msg := d.Compose(reg, event)

	var (
		attempts int
		sent     bool
	)
	send := func() error {
		attempts++
		serr := d.sender.Send(ctx, msg)
		if serr != nil {
			d.log.Debug().Err(serr).
				Int("attempt", attempts).
				Str("event_id", event.ID).
				Msg("notification attempt failed")
			return serr
		}
		sent = true
		return nil
	}

	// retry.Do sleeps after every failed attempt, the last one included, so it
	// runs all but the final attempt and the final one happens here.
	if d.strategy.Attempts > 1 {
		leading := d.strategy
		leading.Attempts--
		_ = retry.Do(func() error {
			if ctx.Err() != nil {
				return nil
			}
			return send()
		}, leading)
	}

	var err error
	switch {
	case sent:
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = send()
	}

	if err == nil {
		d.log.Info().
			Str("event_id", event.ID).
			Str("recipient", msg.Recipient).
			Int("attempts", attempts).
			Msg("notification sent")
		return nil
	}

	d.log.Error().Err(err).
		Str("event_id", event.ID).
		Str("recipient", msg.Recipient).
		Int("attempts", attempts).
		Msg("notification failed, giving up")

	failure := Failure{
		EventID:     event.ID,
		PhoneNumber: reg.PhoneNumber,
		Recipient:   msg.Recipient,
		Attempts:    attempts,
		Error:       err.Error(),
		FailedAt:    time.Now().UTC(),
	}
	select {
	case d.failures <- failure:
	default:
		d.log.Warn().Str("event_id", event.ID).Msg("failure channel full, dropping report")
	}
	return fmt.Errorf("notify %s: %w", msg.Recipient, err)
}

// NormalizeRecipient prefixes a bare national number with the country code.
// Numbers that already carry a prefix are returned without a leading '+'.
func NormalizeRecipient(phone, countryCode string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if len(phone) == nationalNumberLen {
		return countryCode + phone
	}
	return phone
}
