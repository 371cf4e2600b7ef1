package repo

import (
	"context"
	"sort"
	"sync"

	"leadcapture/internal/model"
)

// MemoryRepository keeps events and registrations in process memory. It is
// meant for local runs and tests; a single mutex makes the conditional put
// atomic.
type MemoryRepository struct {
	mu            sync.RWMutex
	events        map[string]model.Event
	registrations map[string]map[string]model.Registration
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events:        make(map[string]model.Event),
		registrations: make(map[string]map[string]model.Registration),
	}
}

func (m *MemoryRepository) MigrateUp(string) error   { return nil }
func (m *MemoryRepository) MigrateDown(string) error { return nil }

func (m *MemoryRepository) CreateEvent(ctx context.Context, e *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[e.ID]; ok {
		return ErrEventExists
	}
	m.events[e.ID] = cloneEvent(*e)
	return nil
}

func (m *MemoryRepository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (m *MemoryRepository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, cloneEvent(e))
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (m *MemoryRepository) CreateRegistrationIfAbsent(ctx context.Context, reg *model.Registration) (*model.Registration, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[reg.EventID]; !ok {
		return nil, false, ErrEventNotFound
	}
	byPhone, ok := m.registrations[reg.EventID]
	if !ok {
		byPhone = make(map[string]model.Registration)
		m.registrations[reg.EventID] = byPhone
	}
	if existing, ok := byPhone[reg.PhoneNumber]; ok {
		out := cloneRegistration(existing)
		return &out, false, nil
	}

	stored := cloneRegistration(*reg)
	byPhone[reg.PhoneNumber] = stored
	out := cloneRegistration(stored)
	return &out, true, nil
}

func (m *MemoryRepository) GetRegistration(ctx context.Context, eventID, phone string) (*model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg, ok := m.registrations[eventID][phone]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	out := cloneRegistration(reg)
	return &out, nil
}

func (m *MemoryRepository) GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byPhone := m.registrations[eventID]
	regs := make([]model.Registration, 0, len(byPhone))
	for _, reg := range byPhone {
		regs = append(regs, cloneRegistration(reg))
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].RegisteredAt.Equal(regs[j].RegisteredAt) {
			return regs[i].PhoneNumber < regs[j].PhoneNumber
		}
		return regs[i].RegisteredAt.Before(regs[j].RegisteredAt)
	})
	return regs, nil
}

func (m *MemoryRepository) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registrations[eventID]), nil
}

func cloneEvent(e model.Event) model.Event {
	e.SelectionSchema.Options = append([]string(nil), e.SelectionSchema.Options...)
	return e
}

func cloneRegistration(r model.Registration) model.Registration {
	r.Selection.Values = append([]string(nil), r.Selection.Values...)
	return r
}
