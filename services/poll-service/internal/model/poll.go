package model

import "time"

// Poll is the event envelope an organizer publishes. Slots are never stored; they are
// derived from Dates, the time range, SlotDuration and TimeZone on every read.
type Poll struct {
	ID             string
	ShareCode      string
	Slug           string
	OwnerID        string
	AdminTokenHash string
	Title          string
	Description    string
	Dates          []string
	TimeRangeStart string
	TimeRangeEnd   string
	SlotDuration   int
	TimeZone       string
	Tier           string
	PasswordHash   string
	BrandColor     string
	NotifyEmail    string
	WebhookURL     string
	// Version increases on every edit of the envelope or its responses.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Poll) PasswordProtected() bool {
	return p.PasswordHash != ""
}

// Response is one respondent's availability. Names are display labels, not identities.
// SelectedSlots may reference slots that an envelope edit has since removed.
type Response struct {
	ID              string
	PollID          string
	RespondentName  string
	RespondentEmail string
	SelectedSlots   []string
	EditTokenHash   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
