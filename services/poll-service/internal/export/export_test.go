package export

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/heatmap"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/slots"
)

func TestWriteCSV(t *testing.T) {
	clock := tzclock.New()
	ids, err := slots.Generate(clock, []string{"2025-01-15"}, "09:00", "11:00", 60, "America/New_York")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	responses := []heatmap.Response{
		{Name: "Ana", Selections: []string{ids[0], ids[1]}},
		{Name: "Ben", Selections: []string{ids[1], "2020-01-01T00:00:00.000Z"}},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, clock, "America/New_York", ids, responses); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want := [][]string{
		{"Date", "Time", "Ana", "Ben", "Available"},
		{"2025-01-15", "9:00 AM", "Yes", "No", "1"},
		{"2025-01-15", "10:00 AM", "Yes", "Yes", "2"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("got %v want %v", rows, want)
	}
}

func TestWriteCSV_DisplayZoneShiftsClock(t *testing.T) {
	clock := tzclock.New()
	ids := []string{"2025-01-15T14:00:00.000Z"}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, clock, "Europe/Berlin", ids, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if rows[1][1] != "3:00 PM" || rows[1][2] != "0" {
		t.Fatalf("unexpected row: %v", rows[1])
	}

	if err := WriteCSV(&bytes.Buffer{}, clock, "Bad/Zone", ids, nil); err == nil {
		t.Fatalf("expected zone error")
	}
}

func TestWriteCSV_EscapesFormulaNames(t *testing.T) {
	clock := tzclock.New()
	ids := []string{"2025-01-15T14:00:00.000Z"}
	responses := []heatmap.Response{
		{Name: "=HYPERLINK(\"http://evil\")", Selections: ids},
		{Name: "@Ana"},
		{Name: "-1"},
		{Name: "Ben"},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, clock, "UTC", ids, responses); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := []string{"Date", "Time", "'=HYPERLINK(\"http://evil\")", "'@Ana", "'-1", "Ben", "Available"}
	if !reflect.DeepEqual(rows[0], want) {
		t.Fatalf("unexpected header %q", rows[0])
	}
}

func TestICS(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	raw, err := ICS(Meeting{
		PollID:   "p-1",
		Title:    "Team sync",
		URL:      "https://whenmeet.app/p/abc/team-sync",
		Slot:     "2025-01-15T14:00:00.000Z",
		Duration: 30 * time.Minute,
	}, now)
	if err != nil {
		t.Fatalf("ICS: %v", err)
	}

	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev := events[0]
	if got := ev.Props.Get(ical.PropSummary).Value; got != "Team sync" {
		t.Fatalf("unexpected summary %q", got)
	}
	start, err := ev.DateTimeStart(time.UTC)
	if err != nil || !start.Equal(time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v err %v", start, err)
	}
	end, err := ev.DateTimeEnd(time.UTC)
	if err != nil || end.Sub(start) != 30*time.Minute {
		t.Fatalf("unexpected end %v err %v", end, err)
	}
	if uid := ev.Props.Get(ical.PropUID).Value; uid != "p-1-20250115T140000Z@whenmeet" {
		t.Fatalf("unexpected uid %q", uid)
	}

	if _, err := ICS(Meeting{Slot: "soon"}, now); err == nil {
		t.Fatalf("expected error for malformed slot")
	}
}
