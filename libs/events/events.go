// Package events holds the Kafka topics and payloads shared between services.
package events

import (
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
)

const (
	TopicPollCreated       = "poll.created.v1"
	TopicPollUpdated       = "poll.updated.v1"
	TopicPollDeleted       = "poll.deleted.v1"
	TopicResponseSubmitted = "poll.response.submitted.v1"
	TopicResponseUpdated   = "poll.response.updated.v1"

	TopicSubscriptionActivated = "billing.subscription.activated.v1"
	TopicSubscriptionCanceled  = "billing.subscription.canceled.v1"

	TopicUserRegistered = "auth.user.registered.v1"

	TopicDigestDue = "poll.digest.due.v1"
	TopicDigestDLQ = "poll.digest.dlq.v1"

	TopicNotificationSent   = "notification.sent.v1"
	TopicNotificationFailed = "notification.failed.v1"
)

const (
	AggregatePoll         = "poll"
	AggregateResponse     = "poll_response"
	AggregateSubscription = "subscription"
	AggregateNotification = "notification"
	AggregateUser         = "user"
	AggregateDigest       = "poll_digest"
)

// PollChanged is emitted on poll creation, envelope edits and deletion.
type PollChanged struct {
	PollID     string    `json:"poll_id"`
	ShareCode  string    `json:"share_code"`
	OwnerID    string    `json:"owner_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`

	// Set on created/updated only.
	PollURL     string `json:"poll_url,omitempty"`
	TimeZone    string `json:"time_zone,omitempty"`
	NotifyEmail string `json:"notify_email,omitempty"`
	FirstSlot   string `json:"first_slot,omitempty"`
}

// DigestDue asks the notifier to remind an organizer that their poll's first
// candidate slot is coming up.
type DigestDue struct {
	PollID      string    `json:"poll_id"`
	ShareCode   string    `json:"share_code"`
	PollTitle   string    `json:"poll_title"`
	PollURL     string    `json:"poll_url"`
	TimeZone    string    `json:"time_zone"`
	NotifyEmail string    `json:"notify_email"`
	FirstSlot   string    `json:"first_slot"`
	RemindAt    time.Time `json:"remind_at"`
	Attempts    int       `json:"attempts,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// ResponseSubmitted carries everything a notifier needs without calling back into
// poll-service.
type ResponseSubmitted struct {
	PollID          string    `json:"poll_id"`
	ShareCode       string    `json:"share_code"`
	PollTitle       string    `json:"poll_title"`
	PollURL         string    `json:"poll_url"`
	TimeZone        string    `json:"time_zone"`
	NotifyEmail     string    `json:"notify_email,omitempty"`
	WebhookURL      string    `json:"webhook_url,omitempty"`
	ResponseID      string    `json:"response_id"`
	RespondentName  string    `json:"respondent_name"`
	RespondentEmail string    `json:"respondent_email,omitempty"`
	SelectedSlots   []string  `json:"selected_slots"`
	Participants    int       `json:"participants"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Subscription is emitted by billing-service whenever a user's plan changes.
type Subscription struct {
	UserID     string              `json:"user_id"`
	Tier       string              `json:"tier"`
	Limits     entitlements.Limits `json:"limits"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// NotificationResult reports the outcome of a single delivery attempt.
type NotificationResult struct {
	PollID     string    `json:"poll_id"`
	ResponseID string    `json:"response_id"`
	Channel    string    `json:"channel"`
	ProviderID string    `json:"provider_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// UserRegistered is emitted once per account.
type UserRegistered struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}
