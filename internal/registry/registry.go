// Package registry owns event creation, lookup and window evaluation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leadcapture/internal/model"
	"leadcapture/internal/repo"
)

var (
	ErrInvalidWindow = errors.New("event start must be before end")
	ErrInvalidSchema = errors.New("selection schema needs at least one distinct, non-blank option")
	ErrNameRequired  = errors.New("event name is required")
	ErrEventNotFound = repo.ErrEventNotFound
)

// Counter reports how many registrations an event has.
type Counter interface {
	CountRegistrations(ctx context.Context, eventID string) (int, error)
}

type Registry struct {
	events  repo.EventStore
	counter Counter
	baseURL string
	newID   func() string
	now     func() time.Time
	log     *zerolog.Logger
}

type Option func(*Registry)

func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) { r.newID = gen }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New builds a Registry. baseURL is the public origin the registration page
// is served from; it prefixes every QR link target.
func New(events repo.EventStore, counter Counter, baseURL string, log *zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		events:  events,
		counter: counter,
		baseURL: strings.TrimRight(baseURL, "/"),
		newID:   uuid.NewString,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Create(ctx context.Context, name string, start, end time.Time, schema model.SelectionSchema) (*model.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if !start.Before(end) {
		return nil, ErrInvalidWindow
	}
	normalized, err := normalizeSchema(schema)
	if err != nil {
		return nil, err
	}

	id := r.newID()
	event := &model.Event{
		ID:              id,
		Name:            name,
		StartTime:       start,
		EndTime:         end,
		SelectionSchema: normalized,
		QRLinkTarget:    r.LinkTarget(id),
		CreatedAt:       r.now(),
	}
	if err := r.events.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	r.log.Info().
		Str("event_id", event.ID).
		Str("kind", string(normalized.Kind)).
		Time("start", start).
		Time("end", end).
		Msg("event created")
	return event, nil
}

// LinkTarget is the registration page URL for an event id.
func (r *Registry) LinkTarget(id string) string {
	return r.baseURL + "/events/" + id
}

func (r *Registry) Get(ctx context.Context, id string) (*model.Event, error) {
	return r.events.GetEventByID(ctx, id)
}

func (r *Registry) Count(ctx context.Context, id string) (int, error) {
	return r.counter.CountRegistrations(ctx, id)
}

// List returns every event, newest first, with its registration count.
func (r *Registry) List(ctx context.Context) ([]model.EventSummary, error) {
	events, err := r.events.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.EventSummary, 0, len(events))
	for _, e := range events {
		count, err := r.counter.CountRegistrations(ctx, e.ID)
		if err != nil {
			r.log.Error().Err(err).Str("event_id", e.ID).Msg("failed to count registrations for event")
			continue
		}
		out = append(out, model.EventSummary{Event: e, Registered: count})
	}
	return out, nil
}

// WindowState places now relative to the half-open window [start, end).
func WindowState(e *model.Event, now time.Time) model.WindowState {
	switch {
	case now.Before(e.StartTime):
		return model.NotStarted
	case !now.Before(e.EndTime):
		return model.Ended
	default:
		return model.Active
	}
}

func normalizeSchema(s model.SelectionSchema) (model.SelectionSchema, error) {
	if s.Kind != model.BuilderChoice && s.Kind != model.ProductChoice {
		return model.SelectionSchema{}, ErrInvalidSchema
	}
	if len(s.Options) == 0 {
		return model.SelectionSchema{}, ErrInvalidSchema
	}

	seen := make(map[string]struct{}, len(s.Options))
	options := make([]string, 0, len(s.Options))
	for _, o := range s.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			return model.SelectionSchema{}, ErrInvalidSchema
		}
		if _, dup := seen[o]; dup {
			return model.SelectionSchema{}, ErrInvalidSchema
		}
		seen[o] = struct{}{}
		options = append(options, o)
	}
	return model.SelectionSchema{Kind: s.Kind, Options: options}, nil
}
