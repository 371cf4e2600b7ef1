package service

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"leadcapture/internal/dto"
	"leadcapture/internal/export"
	"leadcapture/internal/guard"
	"leadcapture/internal/model"
	"leadcapture/internal/registry"
	"leadcapture/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetInfo(ctx *ginext.Context)
	Register(ctx *ginext.Context)
	ListRegistrations(ctx *ginext.Context)
	Export(ctx *ginext.Context)
}

type service struct {
	registry *registry.Registry
	guard    *guard.Guard
	exporter *export.Service
	log      *zerolog.Logger
	now      func() time.Time
}

func NewService(reg *registry.Registry, g *guard.Guard, exp *export.Service, logger *zerolog.Logger) Service {
	return &service{
		registry: reg,
		guard:    g,
		exporter: exp,
		log:      logger,
		now:      time.Now,
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	schema := model.SelectionSchema{
		Kind:    model.SelectionKind(req.SelectionSchema.Kind),
		Options: req.SelectionSchema.Options,
	}
	event, err := s.registry.Create(ctx.Request.Context(), req.Name, req.StartTime, req.EndTime, schema)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrInvalidWindow):
			dto.BadResponseError(ctx, dto.InvalidWindow, err.Error())
		case errors.Is(err, registry.ErrInvalidSchema):
			dto.BadResponseError(ctx, dto.InvalidSchema, err.Error())
		case errors.Is(err, registry.ErrNameRequired):
			dto.FieldRequiredError(ctx, "name")
		default:
			s.log.Error().Err(err).Msg("failed to create event")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.NewEventResponse(event))
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	summaries, err := s.registry.List(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}

	now := s.now()
	resp := make([]dto.EventInfoResponse, 0, len(summaries))
	for i := range summaries {
		e := summaries[i].Event
		resp = append(resp, dto.EventInfoResponse{
			EventResponse: dto.NewEventResponse(&e),
			State:         registry.WindowState(&e, now),
			Registered:    summaries[i].Registered,
		})
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetInfo(ctx *ginext.Context) {
	eventID := ctx.Param("id")

	event, err := s.registry.Get(ctx.Request.Context(), eventID)
	if err != nil {
		s.eventLookupError(ctx, eventID, err)
		return
	}

	count, err := s.registry.Count(ctx.Request.Context(), eventID)
	if err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to count registrations")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.EventInfoResponse{
		EventResponse: dto.NewEventResponse(event),
		State:         registry.WindowState(event, s.now()),
		Registered:    count,
	})
}

func (s *service) Register(ctx *ginext.Context) {
	var req dto.CreateRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	outcome, err := s.guard.Register(ctx.Request.Context(), guard.Submission{
		EventID:       ctx.Param("id"),
		PhoneNumber:   req.PhoneNumber,
		Name:          req.Name,
		FlatNo:        req.FlatNo,
		Wing:          req.Wing,
		Selection:     req.Selection,
		AttachmentRef: req.AttachmentRef,
	})
	if err != nil {
		s.registrationError(ctx, err)
		return
	}

	dto.SuccessResponse(ctx, dto.RegisterResponse{
		Outcome:      string(outcome.Status),
		Registration: dto.NewRegistrationResponse(outcome.Registration),
	})
}

func (s *service) registrationError(ctx *ginext.Context, err error) {
	var (
		notActive *guard.NotActiveError
		required  *guard.FieldRequiredError
	)
	switch {
	case errors.Is(err, guard.ErrEventNotFound):
		dto.EventNotFoundError(ctx)
	case errors.As(err, &notActive):
		dto.EventNotActiveError(ctx, notActive.State)
	case errors.As(err, &required):
		dto.FieldRequiredError(ctx, required.Field)
	case errors.Is(err, guard.ErrInvalidPhoneNumber):
		dto.BadResponseError(ctx, dto.InvalidPhone, err.Error())
	case errors.Is(err, guard.ErrInvalidSelection):
		dto.BadResponseError(ctx, dto.InvalidSelection, err.Error())
	case errors.Is(err, guard.ErrStorage):
		s.log.Error().Err(err).Msg("registration storage failure")
		dto.StorageUnavailableError(ctx)
	default:
		s.log.Error().Err(err).Msg("failed to register")
		dto.InternalServerError(ctx)
	}
}

func (s *service) ListRegistrations(ctx *ginext.Context) {
	eventID := ctx.Param("id")

	regs, err := s.guard.List(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, guard.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to list registrations")
		dto.StorageUnavailableError(ctx)
		return
	}

	resp := make([]dto.RegistrationResponse, 0, len(regs))
	for _, r := range regs {
		resp = append(resp, dto.NewRegistrationResponse(r))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) Export(ctx *ginext.Context) {
	eventID := ctx.Param("id")

	snap, err := s.exporter.Export(ctx.Request.Context(), eventID, s.now())
	if err != nil {
		if errors.Is(err, export.ErrEmptyResult) {
			s.log.Info().Str("event_id", eventID).Msg("export requested for event without registrations")
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		s.eventLookupError(ctx, eventID, err)
		return
	}

	var buf bytes.Buffer
	if err := snap.WriteCSV(&buf); err != nil {
		s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to render export")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("event_id", eventID).
		Int("rows", len(snap.Rows)).
		Msg("registrations exported")

	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, snap.FileName))
	ctx.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *service) eventLookupError(ctx *ginext.Context, eventID string, err error) {
	if errors.Is(err, registry.ErrEventNotFound) {
		dto.EventNotFoundError(ctx)
		return
	}
	s.log.Error().Err(err).Str("event_id", eventID).Msg("failed to load event")
	dto.StorageUnavailableError(ctx)
}
