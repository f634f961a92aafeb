package slots

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

func TestGenerate_EndExclusive(t *testing.T) {
	got, err := Generate(tzclock.New(), []string{"2025-01-15"}, "09:00", "12:00", 60, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"2025-01-15T14:00:00.000Z",
		"2025-01-15T15:00:00.000Z",
		"2025-01-15T16:00:00.000Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGenerate_FullWorkday(t *testing.T) {
	got, err := Generate(tzclock.New(), []string{"2025-01-15"}, "09:00", "17:00", 60, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 8 || got[7] != "2025-01-15T16:00:00.000Z" {
		t.Fatalf("expected 8 slots ending at 16:00, got %v", got)
	}
}

func TestGenerate_ZeroLengthRange(t *testing.T) {
	got, err := Generate(tzclock.New(), []string{"2025-01-15"}, "09:00", "09:00", 30, "Europe/London")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestGenerate_MultipleDatesKeepInputOrder(t *testing.T) {
	dates := []string{"2025-01-16", "2025-01-15", "2025-01-16"}
	got, err := Generate(tzclock.New(), dates, "09:00", "10:00", 30, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"2025-01-16T09:00:00.000Z", "2025-01-16T09:30:00.000Z",
		"2025-01-15T09:00:00.000Z", "2025-01-15T09:30:00.000Z",
		"2025-01-16T09:00:00.000Z", "2025-01-16T09:30:00.000Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGenerate_LengthAndRoundTrip(t *testing.T) {
	clock := tzclock.New()
	dates := []string{"2025-03-03", "2025-03-04", "2025-03-05"}
	for _, d := range []int{15, 30, 60} {
		got, err := Generate(clock, dates, "08:00", "18:00", d, "Australia/Sydney")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := len(dates) * (600 / d); len(got) != want {
			t.Fatalf("duration %d: expected %d slots, got %d", d, want, len(got))
		}
		for i, id := range got {
			if !strings.HasSuffix(id, ".000Z") || len(id) != len(tzclock.SlotIDLayout) {
				t.Fatalf("malformed id %q", id)
			}
			instant, err := tzclock.ParseSlotID(id)
			if err != nil {
				t.Fatalf("unparseable id %q: %v", id, err)
			}
			date, _ := clock.InstantToLocalDate(instant, "Australia/Sydney")
			if want := dates[i/(600/d)]; date != want {
				t.Fatalf("slot %s maps back to %s, want %s", id, date, want)
			}
		}
	}
}

func TestGenerate_StepsElapsedTimeAcrossDST(t *testing.T) {
	// 2025-03-09 is the spring-forward day in New York: 00:00-04:00 local spans three real hours.
	got, err := Generate(tzclock.New(), []string{"2025-03-09"}, "00:00", "04:00", 60, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"2025-03-09T05:00:00.000Z",
		"2025-03-09T06:00:00.000Z",
		"2025-03-09T07:00:00.000Z",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestGenerate_Errors(t *testing.T) {
	clock := tzclock.New()
	if _, err := Generate(clock, []string{"2025-01-15"}, "09:00", "10:00", 0, "UTC"); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := Generate(clock, []string{"2025-01-15"}, "09:00", "10:00", 30, "Not/AZone"); !errors.Is(err, tzclock.ErrUnknownZone) {
		t.Fatalf("expected ErrUnknownZone, got %v", err)
	}
}

func TestGroupByDate(t *testing.T) {
	clock := tzclock.New()
	ids, err := Generate(clock, []string{"2025-01-15", "2025-01-16"}, "09:00", "17:00", 60, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	same, err := GroupByDate(clock, ids, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(same.Dates(), []string{"2025-01-15", "2025-01-16"}) {
		t.Fatalf("unexpected buckets: %v", same.Dates())
	}

	// Tokyo is 14 hours ahead: 09:00-16:00 New York is 23:00-06:00 Tokyo, so each event day
	// touches two Tokyo dates.
	tokyo, err := GroupByDate(clock, ids, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(tokyo.Dates(), []string{"2025-01-15", "2025-01-16", "2025-01-17"}) {
		t.Fatalf("unexpected tokyo buckets: %v", tokyo.Dates())
	}
	first, _ := tokyo.Lookup("2025-01-15")
	if len(first) != 1 || first[0] != "2025-01-15T14:00:00.000Z" {
		t.Fatalf("unexpected first bucket: %v", first)
	}
	total := 0
	for _, g := range tokyo {
		total += len(g.Slots)
	}
	if total != len(ids) {
		t.Fatalf("grouping lost slots: %d vs %d", total, len(ids))
	}
}

func TestGroupByDate_FirstAppearanceOrder(t *testing.T) {
	ids := []string{"2025-01-16T10:00:00.000Z", "2025-01-15T10:00:00.000Z", "2025-01-16T11:00:00.000Z"}
	g, err := GroupByDate(tzclock.New(), ids, "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(g.Dates(), []string{"2025-01-16", "2025-01-15"}) {
		t.Fatalf("unexpected order: %v", g.Dates())
	}
	if s, _ := g.Lookup("2025-01-16"); !reflect.DeepEqual(s, []string{ids[0], ids[2]}) {
		t.Fatalf("unexpected bucket contents: %v", s)
	}
	if _, err := GroupByDate(tzclock.New(), []string{"garbage"}, "UTC"); !errors.Is(err, tzclock.ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestDayOffset(t *testing.T) {
	clock := tzclock.New()
	id := "2025-01-15T23:00:00.000Z"
	cases := []struct {
		display string
		want    int
	}{
		{"America/New_York", 0},
		{"Asia/Tokyo", 1},
		{"Pacific/Honolulu", 0},
	}
	for _, tc := range cases {
		got, err := DayOffset(clock, id, "America/New_York", tc.display)
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %d err %v want %d", tc.display, got, err, tc.want)
		}
	}

	got, err := DayOffset(clock, "2025-01-15T02:00:00.000Z", "UTC", "America/Los_Angeles")
	if err != nil || got != -1 {
		t.Fatalf("expected -1, got %d err %v", got, err)
	}
}
