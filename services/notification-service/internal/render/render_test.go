package render

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

func newRenderer(maxSlots int) *Renderer {
	return New(tzclock.New(), maxSlots, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleEvent() events.ResponseSubmitted {
	return events.ResponseSubmitted{
		PollID:         "p1",
		ShareCode:      "team-sync-abc",
		PollTitle:      "Team sync",
		PollURL:        "https://whenmeet.test/p/team-sync-abc",
		TimeZone:       "America/New_York",
		ResponseID:     "r1",
		RespondentName: " Alice ",
		SelectedSlots: []string{
			"2025-01-15T14:00:00.000Z",
			"not-a-slot",
			"2025-01-15T14:30:00.000Z",
			"2025-01-16T15:00:00.000Z",
			"2025-01-16T15:30:00.000Z",
		},
		Participants: 2,
	}
}

func TestLocalSlots(t *testing.T) {
	evt := sampleEvent()
	slots, remaining, err := newRenderer(3).LocalSlots(evt.SelectedSlots, evt.TimeZone)
	if err != nil {
		t.Fatalf("LocalSlots: %v", err)
	}
	want := []string{"Wed, Jan 15, 9:00 AM", "Wed, Jan 15, 9:30 AM", "Thu, Jan 16, 10:00 AM"}
	if len(slots) != len(want) {
		t.Fatalf("slots = %v", slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d = %q, want %q", i, slots[i], want[i])
		}
	}
	if remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
}

func TestEmail(t *testing.T) {
	subject, body := newRenderer(3).Email(sampleEvent())
	if subject != `Alice responded to "Team sync"` {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{
		"(2 participants so far)",
		"Available (America/New_York):",
		"  Wed, Jan 15, 9:00 AM\n",
		"...and 1 more",
		"View results: https://whenmeet.test/p/team-sync-abc",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmail_NoSelectionAndUnknownZone(t *testing.T) {
	var logs bytes.Buffer
	r := New(tzclock.New(), 0, slog.New(slog.NewTextHandler(&logs, nil)))

	evt := sampleEvent()
	evt.SelectedSlots = nil
	evt.TimeZone = "Mars/Olympus"
	_, body := r.Email(evt)
	if !strings.Contains(body, "No times were selected.") {
		t.Fatalf("body = %q", body)
	}

	evt.SelectedSlots = []string{"2025-01-15T14:00:00.000Z"}
	if _, _, err := r.LocalSlots(evt.SelectedSlots, evt.TimeZone); err == nil {
		t.Fatalf("expected an error for an unknown zone")
	}
	_, body = r.Email(evt)
	if !strings.Contains(body, `Available (UTC, poll time zone "Mars/Olympus" is unknown):`) || !strings.Contains(body, "Wed, Jan 15, 2:00 PM") {
		t.Fatalf("unknown zone must be called out, got %q", body)
	}
	if !strings.Contains(logs.String(), "poll time zone does not resolve") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}
}

func TestWebhook(t *testing.T) {
	p := newRenderer(2).Webhook(sampleEvent())
	if p.Event != events.TopicResponseSubmitted || p.PollID != "p1" || p.ResponseID != "r1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if len(p.LocalSlots) != 2 || len(p.SelectedSlots) != 5 {
		t.Fatalf("slots: local=%v selected=%v", p.LocalSlots, p.SelectedSlots)
	}
}

func TestDigest(t *testing.T) {
	subject, body := newRenderer(3).Digest(events.DigestDue{
		PollTitle: "Sync",
		PollURL:   "https://whenmeet.test/p/abc",
		TimeZone:  "Europe/Berlin",
		FirstSlot: "2025-01-15T08:00:00.000Z",
	})
	if subject != `Reminder: "Sync" is coming up` {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "Wed, Jan 15, 9:00 AM (Europe/Berlin)") || !strings.Contains(body, "https://whenmeet.test/p/abc") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestDigest_UnknownZone(t *testing.T) {
	_, body := newRenderer(3).Digest(events.DigestDue{
		PollTitle: "Sync",
		TimeZone:  "Nowhere/Land",
		FirstSlot: "2025-01-15T08:00:00.000Z",
	})
	if !strings.Contains(body, `Wed, Jan 15, 8:00 AM (UTC, poll time zone "Nowhere/Land" is unknown)`) {
		t.Fatalf("unexpected body %q", body)
	}
}
