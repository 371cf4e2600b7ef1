package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"leadcapture/internal/model"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	FieldRequired      = "FIELD_REQUIRED"
	InvalidPhone       = "INVALID_PHONE_NUMBER"
	InvalidSelection   = "INVALID_SELECTION"
	InvalidWindow      = "INVALID_WINDOW"
	InvalidSchema      = "INVALID_SCHEMA"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	Unauthorized       = "UNAUTHORIZED"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound   = "EVENT_NOT_FOUND"
	EventNotStarted = "EVENT_NOT_STARTED"
	EventEnded      = "EVENT_ENDED"
)

type SelectionSchemaRequest struct {
	Kind    string   `json:"kind" validate:"required,oneof=builder product"`
	Options []string `json:"options" validate:"required,min=1,dive,notblank"`
}

type CreateEventRequest struct {
	Name            string                 `json:"name" validate:"required,notblank,max=255"`
	StartTime       time.Time              `json:"start_time" validate:"required"`
	EndTime         time.Time              `json:"end_time" validate:"required"`
	SelectionSchema SelectionSchemaRequest `json:"selection_schema"`
}

// CreateRegistrationRequest is bound without struct validation: the guard
// owns the order in which registration rules are checked.
type CreateRegistrationRequest struct {
	Name          string          `json:"name"`
	PhoneNumber   string          `json:"phoneNumber"`
	FlatNo        string          `json:"flatNo"`
	Wing          string          `json:"wing"`
	Selection     model.Selection `json:"selection"`
	AttachmentRef string          `json:"attachmentRef,omitempty"`
}

// NotificationMessage is queued for every accepted registration.
type NotificationMessage struct {
	EventID     string `json:"event_id"`
	PhoneNumber string `json:"phone_number"`
}

type EventResponse struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	SelectionSchema model.SelectionSchema `json:"selection_schema"`
	QRLinkTarget    string                `json:"qr_link_target"`
	CreatedAt       time.Time             `json:"created_at"`
}

type EventInfoResponse struct {
	EventResponse
	State      model.WindowState `json:"state"`
	Registered int               `json:"registered"`
}

type RegistrationResponse struct {
	EventID       string          `json:"event_id"`
	PhoneNumber   string          `json:"phone_number"`
	Name          string          `json:"name"`
	FlatNo        string          `json:"flat_no"`
	Wing          string          `json:"wing"`
	Selection     model.Selection `json:"selection"`
	AttachmentRef string          `json:"attachment_ref,omitempty"`
	RegisteredAt  time.Time       `json:"registered_at"`
}

type RegisterResponse struct {
	Outcome      string               `json:"outcome"`
	Registration RegistrationResponse `json:"registration"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func NewEventResponse(e *model.Event) EventResponse {
	return EventResponse{
		ID:              e.ID,
		Name:            e.Name,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		SelectionSchema: e.SelectionSchema,
		QRLinkTarget:    e.QRLinkTarget,
		CreatedAt:       e.CreatedAt,
	}
}

func NewRegistrationResponse(r model.Registration) RegistrationResponse {
	return RegistrationResponse{
		EventID:       r.EventID,
		PhoneNumber:   r.PhoneNumber,
		Name:          r.Name,
		FlatNo:        r.FlatNo,
		Wing:          r.Wing,
		Selection:     r.Selection,
		AttachmentRef: r.AttachmentRef,
		RegisteredAt:  r.RegisteredAt,
	}
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func StorageUnavailableError(c *ginext.Context) {
	ErrorResponse(c, http.StatusServiceUnavailable, ServiceUnavailable, InternalError)
}

func FieldRequiredError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldRequired, "Field '"+fieldName+"' is required")
}

func EventNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, EventNotFound, "Event not found")
}

func EventNotActiveError(c *ginext.Context, state model.WindowState) {
	if state == model.NotStarted {
		ErrorResponse(c, http.StatusConflict, EventNotStarted, "Registration for this event has not opened yet")
		return
	}
	ErrorResponse(c, http.StatusConflict, EventEnded, "Registration for this event has closed")
}

func UnauthorizedError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, desc)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
