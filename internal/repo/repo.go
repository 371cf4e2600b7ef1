package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"leadcapture/internal/model"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrEventExists          = errors.New("event already exists")
	ErrRegistrationNotFound = errors.New("registration not found")
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetAllEvents(ctx context.Context) ([]model.Event, error)
}

type RegistrationStore interface {
	// CreateRegistrationIfAbsent stores reg unless a registration with the same
	// (event_id, phone_number) exists. It returns the stored record and whether
	// this call created it. The check and the write are one atomic step.
	CreateRegistrationIfAbsent(ctx context.Context, reg *model.Registration) (*model.Registration, bool, error)
	GetRegistration(ctx context.Context, eventID, phone string) (*model.Registration, error)
	GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error)
	CountRegistrations(ctx context.Context, eventID string) (int, error)
}

type Repository interface {
	EventStore
	RegistrationStore
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql", "apply")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql", "rollback")
}

func (r *repository) applyMigrations(dir, pattern, verb string) error {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.Master.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to %s migration %s: %w", verb, file, err)
		}
	}

	r.log.Info().Str("dir", dir).Int("files", len(files)).Msgf("migrations: %s done", verb)
	return nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, name, start_time, end_time, selection_kind, options, qr_link_target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Master.ExecContext(ctx, query,
		e.ID, e.Name, e.StartTime, e.EndTime,
		string(e.SelectionSchema.Kind), pq.Array(e.SelectionSchema.Options),
		e.QRLinkTarget, e.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return ErrEventExists
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, selection_kind, options, qr_link_target, created_at
		FROM events WHERE id = $1
	`
	// point lookups follow a write that may not have reached the replicas yet
	e, err := scanEvent(r.db.Master.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	query := `
		SELECT id, name, start_time, end_time, selection_kind, options, qr_link_target, created_at
		FROM events
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

func (r *repository) CreateRegistrationIfAbsent(ctx context.Context, reg *model.Registration) (*model.Registration, bool, error) {
	query := `
		INSERT INTO registered_users
			(event_id, phone_number, name, flat_no, wing, selection, multi_select, attachment_ref, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, phone_number) DO NOTHING
		RETURNING registered_at
	`

	var registeredAt sql.NullTime
	err := r.db.Master.QueryRowContext(ctx, query,
		reg.EventID, reg.PhoneNumber, reg.Name, reg.FlatNo, reg.Wing,
		pq.Array(reg.Selection.Values), reg.Selection.Multi, reg.AttachmentRef, reg.RegisteredAt,
	).Scan(&registeredAt)

	switch {
	case err == nil:
		created := *reg
		created.RegisteredAt = registeredAt.Time
		return &created, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// conflict: the row exists and was left untouched
		existing, err := registrationResult(r.db.Master.QueryRowContext(ctx, selectRegistration, reg.EventID, reg.PhoneNumber))
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case pqCode(err) == pqForeignKeyViolation:
		return nil, false, ErrEventNotFound
	default:
		return nil, false, fmt.Errorf("failed to create registration: %w", err)
	}
}

const selectRegistration = `
	SELECT event_id, phone_number, name, flat_no, wing, selection, multi_select, attachment_ref, registered_at
	FROM registered_users
	WHERE event_id = $1 AND phone_number = $2
`

func (r *repository) GetRegistration(ctx context.Context, eventID, phone string) (*model.Registration, error) {
	return registrationResult(r.db.Master.QueryRowContext(ctx, selectRegistration, eventID, phone))
}

func registrationResult(row scanner) (*model.Registration, error) {
	reg, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error) {
	query := `
		SELECT event_id, phone_number, name, flat_no, wing, selection, multi_select, attachment_ref, registered_at
		FROM registered_users
		WHERE event_id = $1
		ORDER BY registered_at ASC, phone_number ASC
	`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}

	return regs, nil
}

func (r *repository) CountRegistrations(ctx context.Context, eventID string) (int, error) {
	query := `SELECT COUNT(*) FROM registered_users WHERE event_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}

	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.Event, error) {
	var (
		e    model.Event
		kind string
	)
	if err := s.Scan(
		&e.ID, &e.Name, &e.StartTime, &e.EndTime,
		&kind, pq.Array(&e.SelectionSchema.Options),
		&e.QRLinkTarget, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.SelectionSchema.Kind = model.SelectionKind(kind)
	return &e, nil
}

func scanRegistration(s scanner) (*model.Registration, error) {
	var (
		reg        model.Registration
		attachment sql.NullString
	)
	if err := s.Scan(
		&reg.EventID, &reg.PhoneNumber, &reg.Name, &reg.FlatNo, &reg.Wing,
		pq.Array(&reg.Selection.Values), &reg.Selection.Multi,
		&attachment, &reg.RegisteredAt,
	); err != nil {
		return nil, err
	}
	reg.AttachmentRef = attachment.String
	return &reg, nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
