package heatmap

import "sort"

const DefaultTopN = 5

type Ranked struct {
	Slot string `json:"slot"`
	Cell
}

// BestTimeSlots returns at most topN slots ordered by percentage then count, both
// descending. Slots tied on both keep heatmap insertion order. topN <= 0 means DefaultTopN.
func BestTimeSlots(h Heatmap, topN int) []Ranked {
	if topN <= 0 {
		topN = DefaultTopN
	}
	ranked := make([]Ranked, 0, len(h.order))
	for _, slot := range h.order {
		ranked = append(ranked, Ranked{Slot: slot, Cell: h.cells[slot]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Percentage != ranked[j].Percentage {
			return ranked[i].Percentage > ranked[j].Percentage
		}
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

type Stats struct {
	AverageAvailability float64 `json:"average_availability"`
	MaxAvailability     float64 `json:"max_availability"`
	MinAvailability     float64 `json:"min_availability"`
	TotalSlots          int     `json:"total_slots"`
}

// CalculateStats summarizes slot percentages; an empty heatmap yields zero stats.
func CalculateStats(h Heatmap) Stats {
	if len(h.order) == 0 {
		return Stats{}
	}
	first := h.cells[h.order[0]].Percentage
	s := Stats{MaxAvailability: first, MinAvailability: first, TotalSlots: len(h.order)}
	sum := 0.0
	for _, slot := range h.order {
		p := h.cells[slot].Percentage
		sum += p
		if p > s.MaxAvailability {
			s.MaxAvailability = p
		}
		if p < s.MinAvailability {
			s.MinAvailability = p
		}
	}
	s.AverageAvailability = sum / float64(len(h.order))
	return s
}
