package export

import (
	"bytes"
	"time"

	"github.com/emersion/go-ical"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

const productID = "-//whenmeet//poll export//EN"

// Meeting describes the event written into a calendar file.
type Meeting struct {
	PollID      string
	Title       string
	Description string
	URL         string
	Slot        string
	Duration    time.Duration
}

// ICS renders m as a single-event iCalendar document. The UID is stable per poll and slot
// so re-importing updates the same calendar entry.
func ICS(m Meeting, now time.Time) ([]byte, error) {
	start, err := tzclock.ParseSlotID(m.Slot)
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, m.PollID+"-"+start.Format("20060102T150405Z")+"@whenmeet")
	event.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(m.Duration))
	event.Props.SetText(ical.PropSummary, m.Title)
	if m.Description != "" {
		event.Props.SetText(ical.PropDescription, m.Description)
	}
	if m.URL != "" {
		prop := ical.NewProp(ical.PropURL)
		prop.Value = m.URL
		event.Props.Set(prop)
	}
	cal.Children = append(cal.Children, event.Component)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
