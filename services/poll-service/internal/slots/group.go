package slots

import (
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

// DateGroup is one display day and its slots in input order.
type DateGroup struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// DateGroups keeps buckets in the order their date first appeared.
type DateGroups []DateGroup

// Dates lists the bucket keys in order.
func (g DateGroups) Dates() []string {
	out := make([]string, 0, len(g))
	for _, b := range g {
		out = append(out, b.Date)
	}
	return out
}

// Lookup returns the slots bucketed under date.
func (g DateGroups) Lookup(date string) ([]string, bool) {
	for _, b := range g {
		if b.Date == date {
			return b.Slots, true
		}
	}
	return nil, false
}

// GroupByDate buckets slots by their calendar date in displayZone, which may differ from
// the zone the slots were generated in. A slot that crosses midnight under translation
// lands on its display date.
func GroupByDate(clock tzclock.Clock, slotIDs []string, displayZone string) (DateGroups, error) {
	var groups DateGroups
	index := make(map[string]int)
	for _, id := range slotIDs {
		t, err := tzclock.ParseSlotID(id)
		if err != nil {
			return nil, err
		}
		date, err := clock.InstantToLocalDate(t, displayZone)
		if err != nil {
			return nil, err
		}
		i, ok := index[date]
		if !ok {
			i = len(groups)
			index[date] = i
			groups = append(groups, DateGroup{Date: date})
		}
		groups[i].Slots = append(groups[i].Slots, id)
	}
	return groups, nil
}

// DayOffset is the number of calendar days the slot's displayZone date lies after its
// eventZone date; negative when it lies before.
func DayOffset(clock tzclock.Clock, slotID, eventZone, displayZone string) (int, error) {
	t, err := tzclock.ParseSlotID(slotID)
	if err != nil {
		return 0, err
	}
	eventDate, err := clock.InstantToLocalDate(t, eventZone)
	if err != nil {
		return 0, err
	}
	displayDate, err := clock.InstantToLocalDate(t, displayZone)
	if err != nil {
		return 0, err
	}
	a, err := tzclock.ParseDate(eventDate)
	if err != nil {
		return 0, err
	}
	b, err := tzclock.ParseDate(displayDate)
	if err != nil {
		return 0, err
	}
	return int(b.Sub(a).Hours() / 24), nil
}
