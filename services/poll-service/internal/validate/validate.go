// Package validate checks poll envelopes and responses at the HTTP boundary, before any
// slot is generated.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxNameLen        = 100
	minPasswordLen    = 4

	// bcrypt only hashes the first 72 bytes and rejects longer input.
	maxPasswordBytes = 72
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Error is a user-facing rejection. Upgrade marks limits a higher tier would lift.
type Error struct {
	Field   string
	Message string
	Upgrade bool
}

func (e *Error) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

func upgrade(field, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...), Upgrade: true}
}

type ZoneResolver interface {
	Location(zone string) (*time.Location, error)
}

// Envelope is the organizer-editable part of a poll.
type Envelope struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Dates          []string `json:"dates"`
	TimeRangeStart string   `json:"time_range_start"`
	TimeRangeEnd   string   `json:"time_range_end"`
	SlotDuration   int      `json:"slot_duration"`
	TimeZone       string   `json:"time_zone"`
	Password       string   `json:"password,omitempty"`
	BrandColor     string   `json:"brand_color,omitempty"`
	NotifyEmail    string   `json:"notify_email,omitempty"`
	WebhookURL     string   `json:"webhook_url,omitempty"`
	// ClearPassword removes protection on update; an empty Password keeps the old one.
	ClearPassword bool `json:"clear_password,omitempty"`
}

// Normalize trims free-text fields in place.
func (e *Envelope) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.TimeRangeStart = strings.TrimSpace(e.TimeRangeStart)
	e.TimeRangeEnd = strings.TrimSpace(e.TimeRangeEnd)
	e.TimeZone = strings.TrimSpace(e.TimeZone)
	e.BrandColor = strings.TrimSpace(e.BrandColor)
	e.NotifyEmail = strings.TrimSpace(e.NotifyEmail)
	e.WebhookURL = strings.TrimSpace(e.WebhookURL)
	for i, d := range e.Dates {
		e.Dates[i] = strings.TrimSpace(d)
	}
}

// CheckEnvelope returns the first rule e breaks under limits, or nil.
func CheckEnvelope(zones ZoneResolver, e Envelope, limits entitlements.Limits) error {
	if e.Title == "" {
		return invalid("title", "is required")
	}
	if utf8.RuneCountInString(e.Title) > maxTitleLen {
		return invalid("title", "must be at most %d characters", maxTitleLen)
	}
	if utf8.RuneCountInString(e.Description) > maxDescriptionLen {
		return invalid("description", "must be at most %d characters", maxDescriptionLen)
	}

	if len(e.Dates) == 0 {
		return invalid("dates", "at least one date is required")
	}
	if len(e.Dates) > limits.MaxDates {
		return upgrade("dates", "the %s plan allows at most %d dates", limits.Tier, limits.MaxDates)
	}
	seen := make(map[string]struct{}, len(e.Dates))
	for _, d := range e.Dates {
		if _, err := tzclock.ParseDate(d); err != nil {
			return invalid("dates", "%q is not a valid YYYY-MM-DD date", d)
		}
		if _, dup := seen[d]; dup {
			return invalid("dates", "%q is listed more than once", d)
		}
		seen[d] = struct{}{}
	}

	if _, _, err := tzclock.ParseClock(e.TimeRangeStart); err != nil {
		return invalid("time_range_start", "%q is not a valid HH:mm time", e.TimeRangeStart)
	}
	if _, _, err := tzclock.ParseClock(e.TimeRangeEnd); err != nil {
		return invalid("time_range_end", "%q is not a valid HH:mm time", e.TimeRangeEnd)
	}
	// Zero-padded HH:mm compares chronologically as a string.
	if e.TimeRangeStart >= e.TimeRangeEnd {
		return invalid("time_range_end", "must be after time_range_start")
	}

	if _, err := zones.Location(e.TimeZone); err != nil {
		return invalid("time_zone", "%q is not a recognised IANA time zone", e.TimeZone)
	}
	if !limits.AllowsSlotDuration(e.SlotDuration) {
		return invalid("slot_duration", "must be one of %v minutes", limits.AllowedSlotDurations)
	}

	if e.Password != "" {
		if !limits.Features.PasswordProtection {
			return upgrade("password", "password protection requires a premium plan")
		}
		if utf8.RuneCountInString(e.Password) < minPasswordLen {
			return invalid("password", "must be at least %d characters", minPasswordLen)
		}
		if len(e.Password) > maxPasswordBytes {
			return invalid("password", "must be at most %d bytes", maxPasswordBytes)
		}
	}
	if e.BrandColor != "" {
		if !limits.Features.CustomBranding {
			return upgrade("brand_color", "custom branding requires a premium plan")
		}
		if !hexColor.MatchString(e.BrandColor) {
			return invalid("brand_color", "must look like #RRGGBB")
		}
	}
	if e.NotifyEmail != "" {
		if err := checkEmail(e.NotifyEmail); err != nil {
			return invalid("notify_email", "is not a valid email address")
		}
	}
	if e.WebhookURL != "" {
		u, err := url.Parse(e.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("webhook_url", "must be an absolute http(s) URL")
		}
	}
	return nil
}

// Submission is what a respondent sends.
type Submission struct {
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	SelectedSlots []string `json:"selected_slots"`
}

// CheckSubmission trims s and rewrites its selections into canonical slot identifiers,
// dropping repeats. Selections are not matched against the poll's current slots.
func CheckSubmission(s *Submission) error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	if s.Name == "" {
		return invalid("name", "is required")
	}
	if utf8.RuneCountInString(s.Name) > maxNameLen {
		return invalid("name", "must be at most %d characters", maxNameLen)
	}
	if s.Email != "" {
		if err := checkEmail(s.Email); err != nil {
			return invalid("email", "is not a valid email address")
		}
	}

	out := make([]string, 0, len(s.SelectedSlots))
	seen := make(map[string]struct{}, len(s.SelectedSlots))
	for _, raw := range s.SelectedSlots {
		id, err := tzclock.CanonicalSlotID(strings.TrimSpace(raw))
		if err != nil {
			return invalid("selected_slots", "%q is not a valid slot", raw)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	s.SelectedSlots = out
	return nil
}

// Participants rejects a new respondent once the tier's cap is reached.
func Participants(limits entitlements.Limits, current int) error {
	if limits.AllowsParticipants(current) {
		return nil
	}
	return upgrade("responses", "this poll reached the %s plan limit of %d participants", limits.Tier, limits.MaxParticipants)
}

func checkEmail(addr string) error {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return err
	}
	if parsed.Address != addr {
		return fmt.Errorf("unexpected display name in %q", addr)
	}
	return nil
}
