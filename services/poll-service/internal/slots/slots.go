// Package slots materializes a poll's candidate slots and lays them out per calendar day.
package slots

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
)

var ErrInvalidDuration = errors.New("slot duration must be positive")

// Generate returns the slot identifiers of every date in input order. Each date runs from
// startTime (inclusive) to endTime (exclusive) in zone, stepping by durationMinutes of
// elapsed time, so a range spanning a DST change yields slots of true equal length.
// Duplicate or unsorted dates are emitted as given.
func Generate(clock tzclock.Clock, dates []string, startTime, endTime string, durationMinutes int, zone string) ([]string, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMinutes)
	}
	step := time.Duration(durationMinutes) * time.Minute

	var out []string
	for _, date := range dates {
		start, err := clock.LocalToInstant(date, startTime, zone)
		if err != nil {
			return nil, err
		}
		end, err := clock.LocalToInstant(date, endTime, zone)
		if err != nil {
			return nil, err
		}
		for t := start; t.Before(end); t = t.Add(step) {
			out = append(out, tzclock.FormatSlotID(t))
		}
	}
	return out, nil
}
