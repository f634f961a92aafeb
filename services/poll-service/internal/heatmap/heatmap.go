// Package heatmap aggregates respondent selections into per-slot availability.
//
// Selections are joined to slots by identifier on a best-effort basis: an identifier that
// is not among the current slots (for example after the poll's dates were edited) is
// simply never counted, and it is not an error.
package heatmap

import (
	"bytes"
	"encoding/json"
)

// Response is one respondent's availability as stored.
type Response struct {
	Name       string
	Selections []string
}

type Cell struct {
	Count       int      `json:"count"`
	Percentage  float64  `json:"percentage"`
	Respondents []string `json:"respondents"`
}

// Heatmap maps slot identifiers to cells and remembers slot insertion order.
type Heatmap struct {
	order []string
	cells map[string]Cell
}

// Slots returns the slot identifiers in insertion order.
func (h Heatmap) Slots() []string {
	return append([]string(nil), h.order...)
}

func (h Heatmap) Cell(slot string) (Cell, bool) {
	c, ok := h.cells[slot]
	return c, ok
}

func (h Heatmap) Len() int {
	return len(h.order)
}

// MarshalJSON writes an object whose keys follow insertion order.
func (h Heatmap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, slot := range h.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(slot)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(h.cells[slot])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Calculate builds a cell for every slot in allSlots, including ones nobody picked.
// Respondents appear in response order. With no responses every cell is zero.
// A slot listed twice keeps its first position.
func Calculate(responses []Response, allSlots []string) Heatmap {
	h := Heatmap{
		order: make([]string, 0, len(allSlots)),
		cells: make(map[string]Cell, len(allSlots)),
	}

	selected := make([]map[string]struct{}, len(responses))
	for i, r := range responses {
		set := make(map[string]struct{}, len(r.Selections))
		for _, s := range r.Selections {
			set[s] = struct{}{}
		}
		selected[i] = set
	}

	total := len(responses)
	for _, slot := range allSlots {
		if _, dup := h.cells[slot]; dup {
			continue
		}
		cell := Cell{Respondents: []string{}}
		if total > 0 {
			for i, r := range responses {
				if _, ok := selected[i][slot]; ok {
					cell.Respondents = append(cell.Respondents, r.Name)
				}
			}
			cell.Count = len(cell.Respondents)
			cell.Percentage = float64(cell.Count) / float64(total) * 100
		}
		h.order = append(h.order, slot)
		h.cells[slot] = cell
	}
	return h
}
