package guard

import (
	"errors"
	"fmt"

	"leadcapture/internal/model"
	"leadcapture/internal/repo"
	"leadcapture/pkg/validator"
)

var (
	ErrEventNotFound      = repo.ErrEventNotFound
	ErrEventNotActive     = errors.New("event is not accepting registrations")
	ErrFieldRequired      = errors.New("field is required")
	ErrInvalidPhoneNumber = errors.New(validator.ErrInvalidPhone)
	ErrInvalidSelection   = errors.New("selection does not match the event options")
	ErrStorage            = errors.New("storage unavailable")
)

// NotActiveError carries the window state that caused the rejection so
// callers can tell "not yet open" from "closed".
type NotActiveError struct {
	State model.WindowState
}

func (e *NotActiveError) Error() string {
	if e.State == model.NotStarted {
		return "event has not started yet"
	}
	return "event has ended"
}

func (e *NotActiveError) Is(target error) bool {
	return target == ErrEventNotActive
}

type FieldRequiredError struct {
	Field string
}

func (e *FieldRequiredError) Error() string {
	return fmt.Sprintf("field '%s' is required", e.Field)
}

func (e *FieldRequiredError) Is(target error) bool {
	return target == ErrFieldRequired
}

// IsValidation reports whether err is a user-correctable input error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrFieldRequired) ||
		errors.Is(err, ErrInvalidPhoneNumber) ||
		errors.Is(err, ErrInvalidSelection)
}
