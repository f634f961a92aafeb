// Package render turns poll events into notification text.
package render

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

const DefaultMaxSlots = 3

type Renderer struct {
	clock    tzclock.Clock
	maxSlots int
	logger   *slog.Logger
}

func New(clock tzclock.Clock, maxSlots int, logger *slog.Logger) *Renderer {
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	return &Renderer{clock: clock, maxSlots: maxSlots, logger: logger}
}

// LocalSlots formats up to the renderer's limit of slot ids in zone, skipping
// identifiers that do not parse. An unresolvable zone is returned as an error.
func (r *Renderer) LocalSlots(ids []string, zone string) (formatted []string, remaining int, err error) {
	for _, id := range ids {
		t, perr := tzclock.ParseSlotID(id)
		if perr != nil {
			continue
		}
		if len(formatted) == r.maxSlots {
			remaining++
			continue
		}
		local, err := r.clock.InstantToLocalTime(t, zone, tzclock.FormatLong)
		if err != nil {
			return nil, 0, err
		}
		formatted = append(formatted, local)
	}
	return formatted, remaining, nil
}

func (r *Renderer) unknownZone(pollID, zone string, err error) string {
	r.logger.Warn("poll time zone does not resolve", "poll_id", pollID, "time_zone", zone, "err", err)
	return fmt.Sprintf("UTC, poll time zone %q is unknown", zone)
}

func (r *Renderer) Email(evt events.ResponseSubmitted) (subject string, body string) {
	name := strings.TrimSpace(evt.RespondentName)
	subject = fmt.Sprintf("%s responded to %q", name, evt.PollTitle)

	var b strings.Builder
	fmt.Fprintf(&b, "%s responded to %q", name, evt.PollTitle)
	if evt.Participants > 0 {
		fmt.Fprintf(&b, " (%d %s so far)", evt.Participants, plural(evt.Participants, "participant", "participants"))
	}
	b.WriteString(".\n\n")

	zoneLabel := evt.TimeZone
	slots, remaining, err := r.LocalSlots(evt.SelectedSlots, evt.TimeZone)
	if err != nil {
		zoneLabel = r.unknownZone(evt.PollID, evt.TimeZone, err)
		slots, remaining, _ = r.LocalSlots(evt.SelectedSlots, "UTC")
	}
	if len(slots) == 0 {
		b.WriteString("No times were selected.\n")
	} else {
		fmt.Fprintf(&b, "Available (%s):\n", zoneLabel)
		for _, s := range slots {
			fmt.Fprintf(&b, "  %s\n", s)
		}
		if remaining > 0 {
			fmt.Fprintf(&b, "  ...and %d more\n", remaining)
		}
	}
	if evt.PollURL != "" {
		fmt.Fprintf(&b, "\nView results: %s\n", evt.PollURL)
	}
	return subject, b.String()
}

// Digest reminds the organizer that the first candidate slot is coming up.
func (r *Renderer) Digest(evt events.DigestDue) (subject string, body string) {
	subject = fmt.Sprintf("Reminder: %q is coming up", evt.PollTitle)

	var b strings.Builder
	fmt.Fprintf(&b, "Your poll %q has its first candidate time soon", evt.PollTitle)
	if t, err := tzclock.ParseSlotID(evt.FirstSlot); err == nil {
		local, zerr := r.clock.InstantToLocalTime(t, evt.TimeZone, tzclock.FormatLong)
		zoneLabel := evt.TimeZone
		if zerr != nil {
			zoneLabel = r.unknownZone(evt.PollID, evt.TimeZone, zerr)
			local, _ = r.clock.InstantToLocalTime(t, "UTC", tzclock.FormatLong)
		}
		fmt.Fprintf(&b, ": %s (%s)", local, zoneLabel)
	}
	b.WriteString(".\n")
	if evt.PollURL != "" {
		fmt.Fprintf(&b, "\nPick a time: %s\n", evt.PollURL)
	}
	return subject, b.String()
}

type WebhookPayload struct {
	Event          string    `json:"event"`
	PollID         string    `json:"poll_id"`
	ShareCode      string    `json:"share_code"`
	PollTitle      string    `json:"poll_title"`
	PollURL        string    `json:"poll_url,omitempty"`
	ResponseID     string    `json:"response_id"`
	RespondentName string    `json:"respondent_name"`
	SelectedSlots  []string  `json:"selected_slots"`
	LocalSlots     []string  `json:"local_slots"`
	TimeZone       string    `json:"time_zone"`
	Participants   int       `json:"participants"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (r *Renderer) Webhook(evt events.ResponseSubmitted) WebhookPayload {
	local, _, err := r.LocalSlots(evt.SelectedSlots, evt.TimeZone)
	if err != nil {
		r.unknownZone(evt.PollID, evt.TimeZone, err)
		local = nil
	}
	if local == nil {
		local = []string{}
	}
	selected := evt.SelectedSlots
	if selected == nil {
		selected = []string{}
	}
	return WebhookPayload{
		Event:          events.TopicResponseSubmitted,
		PollID:         evt.PollID,
		ShareCode:      evt.ShareCode,
		PollTitle:      evt.PollTitle,
		PollURL:        evt.PollURL,
		ResponseID:     evt.ResponseID,
		RespondentName: evt.RespondentName,
		SelectedSlots:  selected,
		LocalSlots:     local,
		TimeZone:       evt.TimeZone,
		Participants:   evt.Participants,
		OccurredAt:     evt.OccurredAt,
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
