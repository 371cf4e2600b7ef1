// Package export turns an event's registrations into a flat table.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"leadcapture/internal/model"
	"leadcapture/internal/repo"
)

var (
	ErrEventNotFound = repo.ErrEventNotFound
	// ErrEmptyResult is reportable, not fatal: the event exists but nobody
	// has registered yet.
	ErrEmptyResult = errors.New("no registrations for this event")
)

const (
	TimeLayout = "2006-01-02 15:04:05"
	DateLayout = "2006-01-02"
	NoFile     = "No File"
)

var Header = []string{"SrNo", "Name", "PhoneNumber", "FlatNo", "Wing", "Selection", "Attachment", "RegisteredAt"}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[/\\:*?"<>|\x00-\x1f]`)
)

type EventSource interface {
	Get(ctx context.Context, id string) (*model.Event, error)
}

type RegistrationSource interface {
	GetRegistrationsByEventID(ctx context.Context, eventID string) ([]model.Registration, error)
}

type Snapshot struct {
	FileName string
	Header   []string
	Rows     [][]string
}

func (s *Snapshot) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(s.Rows); err != nil {
		return err
	}
	return cw.Error()
}

type Service struct {
	events EventSource
	regs   RegistrationSource
	loc    *time.Location
}

func NewService(events EventSource, regs RegistrationSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{events: events, regs: regs, loc: loc}
}

// Export snapshots every registration of eventID. now only feeds the file name.
func (s *Service) Export(ctx context.Context, eventID string, now time.Time) (*Snapshot, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	regs, err := s.regs.GetRegistrationsByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	if len(regs) == 0 {
		return nil, ErrEmptyResult
	}

	sorted := append([]model.Registration(nil), regs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.PhoneNumber < b.PhoneNumber
	})

	rows := make([][]string, 0, len(sorted))
	for i, r := range sorted {
		attachment := r.AttachmentRef
		if attachment == "" {
			attachment = NoFile
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			r.Name,
			r.PhoneNumber,
			r.FlatNo,
			r.Wing,
			r.Selection.Render(),
			attachment,
			r.RegisteredAt.In(s.loc).Format(TimeLayout),
		})
	}

	return &Snapshot{
		FileName: FileName(event.Name, now.In(s.loc)),
		Header:   append([]string(nil), Header...),
		Rows:     rows,
	}, nil
}

// FileName joins the sanitized event name and the export date.
func FileName(eventName string, date time.Time) string {
	name := strings.TrimSpace(eventName)
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "Event"
	}
	return name + "_" + date.Format(DateLayout)
}
