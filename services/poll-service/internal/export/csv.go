// Package export renders poll results into downloadable formats.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/heatmap"
)

// WriteCSV writes one row per slot with its local date and time in zone, a Yes/No
// column per respondent and the number of respondents available.
func WriteCSV(w io.Writer, clock tzclock.Clock, zone string, slotIDs []string, responses []heatmap.Response) error {
	hm := heatmap.Calculate(responses, slotIDs)

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(responses)+3)
	header = append(header, "Date", "Time")
	for _, r := range responses {
		header = append(header, safeCell(r.Name))
	}
	header = append(header, "Available")
	if err := cw.Write(header); err != nil {
		return err
	}

	selected := make([]map[string]struct{}, len(responses))
	for i, r := range responses {
		selected[i] = make(map[string]struct{}, len(r.Selections))
		for _, s := range r.Selections {
			selected[i][s] = struct{}{}
		}
	}

	for _, id := range hm.Slots() {
		instant, err := tzclock.ParseSlotID(id)
		if err != nil {
			return err
		}
		date, err := clock.InstantToLocalDate(instant, zone)
		if err != nil {
			return err
		}
		clockTime, err := clock.InstantToLocalTime(instant, zone, tzclock.FormatShort)
		if err != nil {
			return err
		}

		row := make([]string, 0, len(header))
		row = append(row, date, clockTime)
		for i := range responses {
			if _, ok := selected[i][id]; ok {
				row = append(row, "Yes")
			} else {
				row = append(row, "No")
			}
		}
		cell, _ := hm.Cell(id)
		row = append(row, strconv.Itoa(cell.Count))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// safeCell keeps spreadsheet apps from evaluating user-supplied text as a formula.
func safeCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}
