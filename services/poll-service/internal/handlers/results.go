package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/cache"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/export"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/heatmap"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/model"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/share"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/slots"
	"go.opentelemetry.io/otel/attribute"
)

const maxTopN = 50

var tracer = otelx.Tracer("poll-service/handlers")

type resultCell struct {
	slotView
	heatmap.Cell
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

type resultDay struct {
	Date  string       `json:"date"`
	Slots []resultCell `json:"slots"`
}

type bestSlot struct {
	heatmap.Ranked
	Label string `json:"label"`
}

type resultsPage struct {
	PollID          string          `json:"poll_id"`
	Version         int64           `json:"version"`
	DisplayZone     string          `json:"display_zone"`
	DayOffset       int             `json:"day_offset"`
	Participants    int             `json:"participants"`
	MaxParticipants int             `json:"max_participants"`
	Heatmap         heatmap.Heatmap `json:"heatmap"`
	Best            []bestSlot      `json:"best"`
	Stats           heatmap.Stats   `json:"stats"`
	Days            []resultDay     `json:"days"`
}

// Results renders the heatmap in the viewer's zone. Query parameters: tz (display zone),
// dark (theme of the empty bucket) and top (number of best slots).
func (h *PollHandler) Results(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}
	displayZone, ok := h.displayZone(w, r, p)
	if !ok {
		return
	}
	q := r.URL.Query()
	dark, _ := strconv.ParseBool(q.Get("dark"))
	topN := heatmap.DefaultTopN
	if raw := strings.TrimSpace(q.Get("top")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopN {
			http.Error(w, "top must be between 1 and "+strconv.Itoa(maxTopN), http.StatusBadRequest)
			return
		}
		topN = n
	}

	ctx := r.Context()
	limits := h.tiers.Limits(ctx, p.OwnerID)
	brandColor := ""
	if limits.Features.CustomBranding {
		brandColor = p.BrandColor
	}
	key := cache.ResultsKey(p.ID, p.Version, limits.Tier, displayZone, dark, topN)
	if body, hit, err := h.results.Get(ctx, key); err != nil {
		h.logger.Warn("results cache read failed", "poll_id", p.ID, "err", err)
	} else if hit {
		writeCachedJSON(w, body, "hit")
		return
	}

	ctx, span := tracer.Start(ctx, "results.generate_slots")
	span.SetAttributes(attribute.String("poll.id", p.ID), attribute.Int("poll.dates", len(p.Dates)))
	ids, err := h.pollSlots(p)
	span.SetAttributes(attribute.Int("poll.slots", len(ids)))
	span.End()
	if err != nil {
		h.writeError(w, err, "results")
		return
	}

	responses, err := h.store.ListResponses(ctx, p.ID)
	if err != nil {
		h.writeError(w, err, "results")
		return
	}

	_, span = tracer.Start(ctx, "results.aggregate")
	hm := heatmap.Calculate(toHeatmapResponses(responses), ids)
	best := heatmap.BestTimeSlots(hm, topN)
	stats := heatmap.CalculateStats(hm)
	span.SetAttributes(attribute.Int("poll.responses", len(responses)))
	span.End()

	page := resultsPage{
		PollID:          p.ID,
		Version:         p.Version,
		DisplayZone:     displayZone,
		Participants:    len(responses),
		MaxParticipants: limits.MaxParticipants,
		Heatmap:         hm,
		Best:            make([]bestSlot, 0, len(best)),
		Stats:           stats,
	}
	if page.DayOffset, err = h.dayOffset(ids, p.TimeZone, displayZone); err != nil {
		h.writeError(w, err, "results")
		return
	}
	for _, b := range best {
		sv, err := h.slotView(b.Slot, displayZone)
		if err != nil {
			h.writeError(w, err, "results")
			return
		}
		page.Best = append(page.Best, bestSlot{Ranked: b, Label: sv.Label})
	}

	groups, err := slots.GroupByDate(h.clock, ids, displayZone)
	if err != nil {
		h.writeError(w, err, "results")
		return
	}
	for _, g := range groups {
		day := resultDay{Date: g.Date, Slots: make([]resultCell, 0, len(g.Slots))}
		for _, id := range g.Slots {
			sv, err := h.slotView(id, displayZone)
			if err != nil {
				h.writeError(w, err, "results")
				return
			}
			cell, _ := hm.Cell(id)
			day.Slots = append(day.Slots, resultCell{
				slotView: sv,
				Cell:     cell,
				Color:    heatmap.Color(cell.Percentage, dark, brandColor),
				Opacity:  heatmap.Opacity(cell.Percentage),
			})
		}
		page.Days = append(page.Days, day)
	}

	body, err := json.Marshal(page)
	if err != nil {
		h.writeError(w, err, "results")
		return
	}
	if err := h.results.Set(ctx, key, body); err != nil {
		h.logger.Warn("results cache write failed", "poll_id", p.ID, "err", err)
	}
	writeCachedJSON(w, body, "miss")
}

// ExportCSV downloads one row per slot with local times in the tz query parameter.
func (h *PollHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}
	displayZone, ok := h.displayZone(w, r, p)
	if !ok {
		return
	}
	ids, responses, ok := h.slotsAndResponses(w, r, p)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, h.clock, displayZone, ids, toHeatmapResponses(responses)); err != nil {
		h.writeError(w, err, "export")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+p.Slug+`.csv"`)
	_, _ = w.Write(buf.Bytes())
}

// BestICS downloads a calendar entry for the top-ranked slot. There is nothing to
// export until at least one respondent is available somewhere.
func (h *PollHandler) BestICS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}
	ids, responses, ok := h.slotsAndResponses(w, r, p)
	if !ok {
		return
	}
	best := heatmap.BestTimeSlots(heatmap.Calculate(toHeatmapResponses(responses), ids), 1)
	if len(best) == 0 || best[0].Count == 0 {
		http.Error(w, "no slot has any availability yet", http.StatusNotFound)
		return
	}

	body, err := export.ICS(export.Meeting{
		PollID:      p.ID,
		Title:       p.Title,
		Description: p.Description,
		URL:         h.baseURL + share.Path(p.ShareCode, p.Slug),
		Slot:        best[0].Slot,
		Duration:    time.Duration(p.SlotDuration) * time.Minute,
	}, h.now())
	if err != nil {
		h.writeError(w, err, "export")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+p.Slug+`.ics"`)
	_, _ = w.Write(body)
}

func (h *PollHandler) slotsAndResponses(w http.ResponseWriter, r *http.Request, p model.Poll) ([]string, []model.Response, bool) {
	ids, err := h.pollSlots(p)
	if err != nil {
		h.writeError(w, err, "export")
		return nil, nil, false
	}
	responses, err := h.store.ListResponses(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, err, "export")
		return nil, nil, false
	}
	return ids, responses, true
}

func toHeatmapResponses(in []model.Response) []heatmap.Response {
	out := make([]heatmap.Response, 0, len(in))
	for _, r := range in {
		out = append(out, heatmap.Response{Name: r.RespondentName, Selections: r.SelectedSlots})
	}
	return out
}

func writeCachedJSON(w http.ResponseWriter, body []byte, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
