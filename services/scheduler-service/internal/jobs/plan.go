package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

type Action int

const (
	ActionIgnore Action = iota
	ActionSchedule
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionSchedule:
		return "schedule"
	case ActionCancel:
		return "cancel"
	default:
		return "ignore"
	}
}

type Decision struct {
	Action Action
	Job    Job
}

// Planner turns poll lifecycle events into digest jobs. A digest fires Lead before the
// poll's first candidate slot, or right away when that moment has already passed.
type Planner struct {
	Lead time.Duration
}

func (p Planner) Plan(topic string, evt events.PollChanged, now time.Time) (Decision, error) {
	if evt.PollID == "" {
		return Decision{}, fmt.Errorf("poll event: missing poll_id")
	}
	job := Job{PollID: evt.PollID, Version: evt.Version}

	switch topic {
	case events.TopicPollDeleted:
		return Decision{Action: ActionCancel, Job: job}, nil
	case events.TopicPollCreated, events.TopicPollUpdated:
	default:
		return Decision{Action: ActionIgnore}, nil
	}

	recipient := strings.TrimSpace(evt.NotifyEmail)
	if recipient == "" || evt.FirstSlot == "" {
		return Decision{Action: ActionCancel, Job: job}, nil
	}
	firstAt, err := tzclock.ParseSlotID(evt.FirstSlot)
	if err != nil {
		return Decision{}, fmt.Errorf("poll event: first_slot: %w", err)
	}
	if !firstAt.After(now) {
		return Decision{Action: ActionCancel, Job: job}, nil
	}
	remindAt := firstAt.Add(-p.Lead)
	if remindAt.Before(now) {
		remindAt = now
	}

	job.ShareCode = evt.ShareCode
	job.Title = evt.Title
	job.PollURL = evt.PollURL
	job.TimeZone = evt.TimeZone
	job.Recipient = recipient
	job.FirstSlot = evt.FirstSlot
	job.RemindAt = remindAt.UTC()
	return Decision{Action: ActionSchedule, Job: job}, nil
}

// DueEvent is the payload published when job fires.
func DueEvent(job Job) events.DigestDue {
	return events.DigestDue{
		PollID:      job.PollID,
		ShareCode:   job.ShareCode,
		PollTitle:   job.Title,
		PollURL:     job.PollURL,
		TimeZone:    job.TimeZone,
		NotifyEmail: job.Recipient,
		FirstSlot:   job.FirstSlot,
		RemindAt:    job.RemindAt,
		Attempts:    job.Attempts,
	}
}
