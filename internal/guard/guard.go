// Package guard implements the registration write path: validation, window
// gating and exactly-once acceptance per (event, phone).
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leadcapture/internal/model"
	"leadcapture/internal/registry"
	"leadcapture/internal/repo"
	"leadcapture/pkg/validator"
)

type Status string

const (
	Accepted          Status = "accepted"
	AlreadyRegistered Status = "already_registered"
)

type Outcome struct {
	Status       Status
	Registration model.Registration
}

type Submission struct {
	EventID       string
	PhoneNumber   string
	Name          string
	FlatNo        string
	Wing          string
	Selection     model.Selection
	AttachmentRef string
}

type EventSource interface {
	Get(ctx context.Context, id string) (*model.Event, error)
}

// Notifier is told about each accepted registration exactly once. It must
// not block on delivery.
type Notifier interface {
	Enqueue(ctx context.Context, reg model.Registration, event model.Event) error
}

type Guard struct {
	events   EventSource
	store    repo.RegistrationStore
	notifier Notifier
	now      func() time.Time
	log      *zerolog.Logger
}

func New(events EventSource, store repo.RegistrationStore, notifier Notifier, log *zerolog.Logger) *Guard {
	return &Guard{
		events:   events,
		store:    store,
		notifier: notifier,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the clock used for window checks and registeredAt.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

func (g *Guard) Register(ctx context.Context, sub Submission) (Outcome, error) {
	event, err := g.events.Get(ctx, sub.EventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			return Outcome{}, ErrEventNotFound
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	now := g.now()
	if state := registry.WindowState(event, now); state != model.Active {
		return Outcome{}, &NotActiveError{State: state}
	}

	reg, err := validate(event, sub)
	if err != nil {
		return Outcome{}, err
	}
	reg.RegisteredAt = now.UTC()

	stored, created, err := g.store.CreateRegistrationIfAbsent(ctx, &reg)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			return Outcome{}, ErrEventNotFound
		}
		return Outcome{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if !created {
		g.log.Info().
			Str("event_id", event.ID).
			Str("phone", stored.PhoneNumber).
			Msg("registration already exists, nothing written")
		return Outcome{Status: AlreadyRegistered, Registration: *stored}, nil
	}

	g.log.Info().
		Str("event_id", event.ID).
		Str("phone", stored.PhoneNumber).
		Msg("registration accepted")

	if g.notifier != nil {
		// the registration is committed; the caller going away must not stop the notification
		if err := g.notifier.Enqueue(context.WithoutCancel(ctx), *stored, *event); err != nil {
			g.log.Warn().Err(err).
				Str("event_id", event.ID).
				Str("phone", stored.PhoneNumber).
				Msg("failed to enqueue notification")
		}
	}

	return Outcome{Status: Accepted, Registration: *stored}, nil
}

// List returns every registration of an event, oldest first.
func (g *Guard) List(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := g.events.Get(ctx, eventID); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	regs, err := g.store.GetRegistrationsByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return regs, nil
}

func validate(event *model.Event, sub Submission) (model.Registration, error) {
	name := strings.TrimSpace(sub.Name)
	flatNo := strings.TrimSpace(sub.FlatNo)
	wing := strings.TrimSpace(sub.Wing)

	switch {
	case name == "":
		return model.Registration{}, &FieldRequiredError{Field: "name"}
	case flatNo == "":
		return model.Registration{}, &FieldRequiredError{Field: "flatNo"}
	case wing == "":
		return model.Registration{}, &FieldRequiredError{Field: "wing"}
	}

	phone := strings.TrimSpace(sub.PhoneNumber)
	if !validator.IsPhone(phone) {
		return model.Registration{}, ErrInvalidPhoneNumber
	}

	if !event.SelectionSchema.Conforms(sub.Selection) {
		return model.Registration{}, ErrInvalidSelection
	}
	selection := model.Selection{
		Values: append([]string(nil), sub.Selection.Values...),
		Multi:  sub.Selection.Multi,
	}

	return model.Registration{
		EventID:       event.ID,
		PhoneNumber:   phone,
		Name:          name,
		FlatNo:        flatNo,
		Wing:          wing,
		Selection:     selection,
		AttachmentRef: strings.TrimSpace(sub.AttachmentRef),
	}, nil
}
