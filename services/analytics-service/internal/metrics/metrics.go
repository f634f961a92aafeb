// Package metrics folds account, poll and notification events into daily counters.
package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
)

// ErrIgnored marks events that carry nothing to count.
var ErrIgnored = errors.New("event ignored")

// Delta is the counter change one event contributes to a UTC day.
type Delta struct {
	Day                time.Time
	PollsCreated       int
	PollsUpdated       int
	PollsDeleted       int
	ResponsesSubmitted int
	ResponsesUpdated   int
	UsersRegistered    int
	Channel            string
	Sent               int
	Failed             int
}

func (d Delta) HasPollCounters() bool {
	return d.PollsCreated+d.PollsUpdated+d.PollsDeleted+d.ResponsesSubmitted+d.ResponsesUpdated+d.UsersRegistered > 0
}

func (d Delta) HasNotificationCounters() bool {
	return d.Channel != "" && d.Sent+d.Failed > 0
}

// Classify decodes an event by topic. Payloads without a timestamp fall back to
// receivedAt so a clock-less producer still lands on a day.
func Classify(topic string, value []byte, receivedAt time.Time) (Delta, error) {
	switch topic {
	case events.TopicPollCreated, events.TopicPollUpdated, events.TopicPollDeleted:
		var p events.PollChanged
		if err := json.Unmarshal(value, &p); err != nil {
			return Delta{}, fmt.Errorf("poll payload: %w", err)
		}
		if p.PollID == "" {
			return Delta{}, fmt.Errorf("poll payload: missing poll_id")
		}
		d := Delta{Day: day(p.OccurredAt, receivedAt)}
		switch topic {
		case events.TopicPollCreated:
			d.PollsCreated = 1
		case events.TopicPollUpdated:
			d.PollsUpdated = 1
		default:
			d.PollsDeleted = 1
		}
		return d, nil

	case events.TopicResponseSubmitted, events.TopicResponseUpdated:
		var r events.ResponseSubmitted
		if err := json.Unmarshal(value, &r); err != nil {
			return Delta{}, fmt.Errorf("response payload: %w", err)
		}
		if r.PollID == "" {
			return Delta{}, fmt.Errorf("response payload: missing poll_id")
		}
		d := Delta{Day: day(r.OccurredAt, receivedAt)}
		if topic == events.TopicResponseSubmitted {
			d.ResponsesSubmitted = 1
		} else {
			d.ResponsesUpdated = 1
		}
		return d, nil

	case events.TopicUserRegistered:
		var u events.UserRegistered
		if err := json.Unmarshal(value, &u); err != nil {
			return Delta{}, fmt.Errorf("user payload: %w", err)
		}
		if u.UserID == "" {
			return Delta{}, fmt.Errorf("user payload: missing user_id")
		}
		return Delta{Day: day(u.OccurredAt, receivedAt), UsersRegistered: 1}, nil

	case events.TopicNotificationSent, events.TopicNotificationFailed:
		var n events.NotificationResult
		if err := json.Unmarshal(value, &n); err != nil {
			return Delta{}, fmt.Errorf("notification payload: %w", err)
		}
		if n.Channel == "" {
			return Delta{}, fmt.Errorf("notification payload: missing channel")
		}
		d := Delta{Day: day(n.OccurredAt, receivedAt), Channel: n.Channel}
		if topic == events.TopicNotificationSent {
			d.Sent = 1
		} else {
			d.Failed = 1
		}
		return d, nil
	}
	return Delta{}, ErrIgnored
}

func day(occurredAt, fallback time.Time) time.Time {
	t := occurredAt
	if t.IsZero() {
		t = fallback
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Topics lists everything the analytics consumer subscribes to.
func Topics() []string {
	return []string{
		events.TopicPollCreated,
		events.TopicPollUpdated,
		events.TopicPollDeleted,
		events.TopicResponseSubmitted,
		events.TopicResponseUpdated,
		events.TopicUserRegistered,
		events.TopicNotificationSent,
		events.TopicNotificationFailed,
	}
}
