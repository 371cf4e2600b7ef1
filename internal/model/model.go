package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type SelectionKind string

const (
	// BuilderChoice lets a registrant pick exactly one option.
	BuilderChoice SelectionKind = "builder"
	// ProductChoice lets a registrant pick any non-empty subset of options.
	ProductChoice SelectionKind = "product"
)

type SelectionSchema struct {
	Kind    SelectionKind `json:"kind"`
	Options []string      `json:"options"`
}

func (s SelectionSchema) Has(option string) bool {
	for _, o := range s.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Conforms reports whether sel has the cardinality the schema asks for and
// only names known options.
func (s SelectionSchema) Conforms(sel Selection) bool {
	switch s.Kind {
	case BuilderChoice:
		if sel.Multi || len(sel.Values) != 1 {
			return false
		}
	case ProductChoice:
		if !sel.Multi || len(sel.Values) == 0 {
			return false
		}
	default:
		return false
	}

	seen := make(map[string]struct{}, len(sel.Values))
	for _, v := range sel.Values {
		if !s.Has(v) {
			return false
		}
		if _, dup := seen[v]; dup {
			return false
		}
		seen[v] = struct{}{}
	}
	return true
}

// Selection is either a single option (JSON string) or a set of options
// (JSON array).
type Selection struct {
	Values []string
	Multi  bool
}

func Single(option string) Selection {
	return Selection{Values: []string{option}}
}

func Multiple(options ...string) Selection {
	return Selection{Values: options, Multi: true}
}

func (s Selection) Render() string {
	return strings.Join(s.Values, ", ")
}

func (s Selection) MarshalJSON() ([]byte, error) {
	if !s.Multi {
		if len(s.Values) == 0 {
			return []byte(`""`), nil
		}
		return json.Marshal(s.Values[0])
	}
	if s.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Values)
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	switch {
	case trimmed == "null":
		*s = Selection{}
		return nil
	case strings.HasPrefix(trimmed, "["):
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*s = Selection{Values: values, Multi: true}
		return nil
	case strings.HasPrefix(trimmed, `"`):
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*s = Single(value)
		return nil
	}
	return errors.New("selection must be a string or an array of strings")
}

type WindowState string

const (
	NotStarted WindowState = "not_started"
	Active     WindowState = "active"
	Ended      WindowState = "ended"
)

type Event struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	StartTime       time.Time       `db:"start_time" json:"start_time"`
	EndTime         time.Time       `db:"end_time" json:"end_time"`
	SelectionSchema SelectionSchema `db:"-" json:"selection_schema"`
	QRLinkTarget    string          `db:"qr_link_target" json:"qr_link_target"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type Registration struct {
	EventID       string    `db:"event_id" json:"event_id"`
	PhoneNumber   string    `db:"phone_number" json:"phone_number"`
	Name          string    `db:"name" json:"name"`
	FlatNo        string    `db:"flat_no" json:"flat_no"`
	Wing          string    `db:"wing" json:"wing"`
	Selection     Selection `db:"-" json:"selection"`
	AttachmentRef string    `db:"attachment_ref,omitempty" json:"attachment_ref,omitempty"`
	RegisteredAt  time.Time `db:"registered_at" json:"registered_at"`
}

// EventSummary pairs an event with how many people have registered so far.
type EventSummary struct {
	Event
	Registered int `json:"registered"`
}
