// Package tzclock converts between wall-clock readings in IANA zones and UTC instants.
package tzclock

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
	// SlotIDLayout is fixed width so identifiers sort chronologically as plain strings.
	SlotIDLayout = "2006-01-02T15:04:05.000Z"

	shortLayout = "3:04 PM"
	longLayout  = "Mon, Jan 2, 3:04 PM"
)

type Format int

const (
	FormatShort Format = iota
	FormatLong
)

var (
	ErrUnknownZone  = errors.New("unknown time zone")
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time of day")
	ErrInvalidSlot  = errors.New("invalid slot identifier")
)

// Clock is the only place the rest of the service touches zone rules.
type Clock interface {
	LocalToInstant(date, clock, zone string) (time.Time, error)
	InstantToLocalDate(instant time.Time, zone string) (string, error)
	InstantToLocalTime(instant time.Time, zone string, format Format) (string, error)
}

// IANA implements Clock over the embedded tz database. Safe for concurrent use.
type IANA struct {
	locations sync.Map // zone name -> *time.Location
}

func New() *IANA {
	return &IANA{}
}

// Location resolves zone, caching the result. "Local" and the empty name are rejected
// because they depend on the host.
func (c *IANA) Location(zone string) (*time.Location, error) {
	if v, ok := c.locations.Load(zone); ok {
		return v.(*time.Location), nil
	}
	if strings.TrimSpace(zone) == "" || zone == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, zone)
	}
	actual, _ := c.locations.LoadOrStore(zone, loc)
	return actual.(*time.Location), nil
}

// LocalToInstant returns the UTC instant of the wall-clock reading date+clock in zone.
// Readings inside a DST gap or overlap resolve the way time.Date normalizes them.
func (c *IANA) LocalToInstant(date, clock, zone string) (time.Time, error) {
	loc, err := c.Location(zone)
	if err != nil {
		return time.Time{}, err
	}
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc).UTC(), nil
}

func (c *IANA) InstantToLocalDate(instant time.Time, zone string) (string, error) {
	loc, err := c.Location(zone)
	if err != nil {
		return "", err
	}
	return instant.In(loc).Format(DateLayout), nil
}

func (c *IANA) InstantToLocalTime(instant time.Time, zone string, format Format) (string, error) {
	loc, err := c.Location(zone)
	if err != nil {
		return "", err
	}
	layout := shortLayout
	if format == FormatLong {
		layout = longLayout
	}
	return instant.In(loc).Format(layout), nil
}

// ParseDate accepts YYYY-MM-DD naming a real Gregorian date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// ParseClock accepts 24-hour HH:mm with both fields zero padded.
func ParseClock(s string) (hour, minute int, err error) {
	if len(s) != len(ClockLayout) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return t.Hour(), t.Minute(), nil
}

func FormatSlotID(t time.Time) string {
	return t.UTC().Format(SlotIDLayout)
}

// ParseSlotID accepts any RFC 3339 instant; FormatSlotID of the result is canonical.
func ParseSlotID(id string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidSlot, id)
	}
	return t.UTC(), nil
}

// CanonicalSlotID rewrites an RFC 3339 instant into slot identifier form.
func CanonicalSlotID(id string) (string, error) {
	t, err := ParseSlotID(id)
	if err != nil {
		return "", err
	}
	return FormatSlotID(t), nil
}
