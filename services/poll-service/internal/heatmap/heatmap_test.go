package heatmap

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

var threeSlots = []string{
	"2025-01-15T14:00:00.000Z",
	"2025-01-15T15:00:00.000Z",
	"2025-01-15T16:00:00.000Z",
}

func TestCalculate_NoResponses(t *testing.T) {
	h := Calculate(nil, threeSlots)
	if h.Len() != 3 {
		t.Fatalf("expected 3 cells, got %d", h.Len())
	}
	for _, slot := range threeSlots {
		c, ok := h.Cell(slot)
		if !ok {
			t.Fatalf("missing cell for %s", slot)
		}
		if c.Count != 0 || c.Percentage != 0 || c.Respondents == nil || len(c.Respondents) != 0 {
			t.Fatalf("expected zero cell, got %+v", c)
		}
	}
}

func TestCalculate_CountsAndRespondentOrder(t *testing.T) {
	responses := []Response{
		{Name: "Ana", Selections: []string{threeSlots[0], threeSlots[1]}},
		{Name: "Ben", Selections: []string{threeSlots[0], "2024-12-01T09:00:00.000Z"}},
		{Name: "Ana", Selections: []string{threeSlots[0], threeSlots[0]}},
	}
	h := Calculate(responses, threeSlots)

	c, _ := h.Cell(threeSlots[0])
	if c.Count != 3 || c.Percentage != 100 || !reflect.DeepEqual(c.Respondents, []string{"Ana", "Ben", "Ana"}) {
		t.Fatalf("unexpected first cell: %+v", c)
	}
	c, _ = h.Cell(threeSlots[1])
	if c.Count != 1 || math.Abs(c.Percentage-100.0/3) > 1e-9 {
		t.Fatalf("unexpected second cell: %+v", c)
	}
	c, _ = h.Cell(threeSlots[2])
	if c.Count != 0 || c.Percentage != 0 {
		t.Fatalf("unexpected third cell: %+v", c)
	}
	if _, ok := h.Cell("2024-12-01T09:00:00.000Z"); ok {
		t.Fatalf("unknown selections must not create cells")
	}

	for _, slot := range h.Slots() {
		c, _ := h.Cell(slot)
		if len(c.Respondents) != c.Count {
			t.Fatalf("respondents and count disagree for %s: %+v", slot, c)
		}
		if want := 100 * float64(c.Count) / float64(len(responses)); math.Abs(c.Percentage-want) > 1e-9 {
			t.Fatalf("percentage mismatch for %s: %v vs %v", slot, c.Percentage, want)
		}
	}
}

func TestCalculate_DuplicateSlotsKeepFirstPosition(t *testing.T) {
	h := Calculate(nil, []string{"b", "a", "b"})
	if !reflect.DeepEqual(h.Slots(), []string{"b", "a"}) {
		t.Fatalf("unexpected order: %v", h.Slots())
	}
}

func TestHeatmapMarshalJSON_KeepsOrder(t *testing.T) {
	h := Calculate([]Response{{Name: "Ana", Selections: []string{"z"}}}, []string{"z", "a"})
	b, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"z":{"count":1,"percentage":100,"respondents":["Ana"]},"a":{"count":0,"percentage":0,"respondents":[]}}`
	if string(b) != want {
		t.Fatalf("got %s", b)
	}
}

func TestBestTimeSlots(t *testing.T) {
	slots := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7"}
	responses := []Response{
		{Name: "Ana", Selections: []string{"s2", "s3", "s5", "s7"}},
		{Name: "Ben", Selections: []string{"s3", "s5"}},
		{Name: "Cy", Selections: []string{"s5", "s6"}},
	}
	h := Calculate(responses, slots)

	best := BestTimeSlots(h, 0)
	if len(best) != DefaultTopN {
		t.Fatalf("expected default of %d, got %d", DefaultTopN, len(best))
	}
	got := make([]string, 0, len(best))
	for _, r := range best {
		got = append(got, r.Slot)
	}
	// s2, s6 and s7 tie at one vote and keep insertion order.
	if want := []string{"s5", "s3", "s2", "s6", "s7"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for _, r := range best[1:] {
		if r.Percentage > best[0].Percentage {
			t.Fatalf("first entry must have the highest percentage")
		}
	}

	if n := len(BestTimeSlots(h, 2)); n != 2 {
		t.Fatalf("expected 2 entries, got %d", n)
	}
	if n := len(BestTimeSlots(h, 50)); n != len(slots) {
		t.Fatalf("expected all %d slots, got %d", len(slots), n)
	}
	if n := len(BestTimeSlots(Calculate(nil, nil), 5)); n != 0 {
		t.Fatalf("expected empty ranking, got %d", n)
	}
}

func TestCalculateStats(t *testing.T) {
	if s := CalculateStats(Calculate(nil, nil)); s != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", s)
	}

	responses := []Response{
		{Name: "Ana", Selections: []string{threeSlots[0], threeSlots[1]}},
		{Name: "Ben", Selections: []string{threeSlots[0]}},
		{Name: "Cy", Selections: []string{threeSlots[0]}},
	}
	s := CalculateStats(Calculate(responses, threeSlots))
	if s.TotalSlots != 3 || s.MaxAvailability != 100 || s.MinAvailability != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if math.Abs(s.AverageAvailability-44.44) > 0.01 {
		t.Fatalf("unexpected average: %v", s.AverageAvailability)
	}
}

func TestCalculateStats_RoundedPercentages(t *testing.T) {
	h := Heatmap{
		order: []string{"a", "b", "c"},
		cells: map[string]Cell{
			"a": {Percentage: 100},
			"b": {Percentage: 33},
			"c": {Percentage: 0},
		},
	}
	s := CalculateStats(h)
	if math.Abs(s.AverageAvailability-44.333) > 0.001 || s.MaxAvailability != 100 || s.MinAvailability != 0 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestColorAndOpacity(t *testing.T) {
	cases := []struct {
		pct    float64
		bucket int
	}{
		{0, 0}, {0.5, 1}, {20, 1}, {20.1, 2}, {40, 2}, {41, 3}, {60, 3}, {61, 4}, {80, 4}, {81, 5}, {100, 5},
	}
	for _, tc := range cases {
		if got := Bucket(tc.pct); got != tc.bucket {
			t.Fatalf("Bucket(%v) = %d, want %d", tc.pct, got, tc.bucket)
		}
	}

	if Color(0, false, "") == Color(0, true, "") {
		t.Fatalf("empty bucket must depend on theme")
	}
	if Color(50, false, "") != Color(50, true, "") {
		t.Fatalf("non-empty buckets are theme independent")
	}
	if got := Color(90, false, "#ff6600"); got != "#ff6600" {
		t.Fatalf("custom color should override the top bucket, got %s", got)
	}
	if got := Color(70, false, "#ff6600"); got == "#ff6600" {
		t.Fatalf("custom color must only apply to the top bucket")
	}

	prev := -1.0
	for _, pct := range []float64{0, 10, 30, 50, 70, 100} {
		o := Opacity(pct)
		if o <= prev || o > 1 {
			t.Fatalf("opacity must increase with availability: %v at %v", o, pct)
		}
		prev = o
	}
}
