package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcapture/internal/model"
	"leadcapture/internal/repo"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type events struct{ store *repo.MemoryRepository }

func (e events) Get(ctx context.Context, id string) (*model.Event, error) {
	return e.store.GetEventByID(ctx, id)
}

func seed(t *testing.T) (*repo.MemoryRepository, *model.Event) {
	t.Helper()
	store := repo.NewMemoryRepository()
	ev := &model.Event{
		ID:              "evt-1",
		Name:            "  Spring   Launch: Tower/B ",
		StartTime:       t0,
		EndTime:         t0.Add(time.Hour),
		SelectionSchema: model.SelectionSchema{Kind: model.ProductChoice, Options: []string{"Solar", "Gym"}},
	}
	require.NoError(t, store.CreateEvent(context.Background(), ev))
	return store, ev
}

func add(t *testing.T, store *repo.MemoryRepository, phone, name string, at time.Time, attachment string, sel model.Selection) {
	t.Helper()
	_, created, err := store.CreateRegistrationIfAbsent(context.Background(), &model.Registration{
		EventID:       "evt-1",
		PhoneNumber:   phone,
		Name:          name,
		FlatNo:        "101",
		Wing:          "A",
		Selection:     sel,
		AttachmentRef: attachment,
		RegisteredAt:  at,
	})
	require.NoError(t, err)
	require.True(t, created)
}

func TestExport(t *testing.T) {
	store, _ := seed(t)
	add(t, store, "9000000003", "Cara", t0.Add(3*time.Minute), "", model.Multiple("Gym"))
	add(t, store, "9000000002", "Bala", t0.Add(time.Minute), "https://files.example.com/b.pdf", model.Multiple("Solar", "Gym"))
	add(t, store, "9000000001", "Asha", t0.Add(time.Minute), "", model.Multiple("Solar"))

	svc := NewService(events{store}, store, time.UTC)
	snap, err := svc.Export(context.Background(), "evt-1", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "Spring_Launch_TowerB_2026-03-02", snap.FileName)
	assert.Equal(t, Header, snap.Header)
	require.Len(t, snap.Rows, 3)

	assert.Equal(t, []string{"1", "Asha", "9000000001", "101", "A", "Solar", NoFile, "2026-03-01 10:01:00"}, snap.Rows[0])
	assert.Equal(t, []string{"2", "Bala", "9000000002", "101", "A", "Solar, Gym", "https://files.example.com/b.pdf", "2026-03-01 10:01:00"}, snap.Rows[1])
	assert.Equal(t, "3", snap.Rows[2][0])
	assert.Equal(t, "Cara", snap.Rows[2][1])
}

func TestExportTimezone(t *testing.T) {
	store, _ := seed(t)
	add(t, store, "9000000001", "Asha", t0, "", model.Multiple("Solar"))

	loc := time.FixedZone("IST", 5*3600+1800)
	snap, err := NewService(events{store}, store, loc).Export(context.Background(), "evt-1", time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 15:30:00", snap.Rows[0][7])
	assert.Equal(t, "Spring_Launch_TowerB_2026-03-02", snap.FileName)
}

func TestExportEmpty(t *testing.T) {
	store, _ := seed(t)
	_, err := NewService(events{store}, store, nil).Export(context.Background(), "evt-1", t0)
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestExportMissingEvent(t *testing.T) {
	store, _ := seed(t)
	_, err := NewService(events{store}, store, nil).Export(context.Background(), "nope", t0)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestWriteCSV(t *testing.T) {
	snap := &Snapshot{
		Header: Header,
		Rows:   [][]string{{"1", "Asha, R", "9000000001", "101", "A", "Solar, Gym", NoFile, "2026-03-01 10:00:00"}},
	}
	var buf bytes.Buffer
	require.NoError(t, snap.WriteCSV(&buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "Asha, R", records[1][1])
}

func TestFileName(t *testing.T) {
	day := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	tests := map[string]string{
		"Launch Day":          "Launch_Day_2026-01-09",
		"  Tabs\tand\nlines ": "Tabs_and_lines_2026-01-09",
		`a<b>c:d"e|f?g*h`:     "abcdefgh_2026-01-09",
		"../../etc":           "etc_2026-01-09",
		"":                    "Event_2026-01-09",
		"///":                 "Event_2026-01-09",
	}
	for in, want := range tests {
		assert.Equal(t, want, FileName(in, day), in)
	}
}
