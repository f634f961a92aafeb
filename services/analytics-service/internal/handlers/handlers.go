package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

const (
	dayLayout  = "2006-01-02"
	maxDays    = 366
	defaultWin = 30
)

type Store interface {
	Apply(ctx context.Context, d metrics.Delta) error
	Daily(ctx context.Context, from, to time.Time) ([]metrics.DayMetrics, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger, now: time.Now}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/daily", h.Daily)
}

// Consume is the kafka handler. Malformed events are logged and dropped.
func (h *Handler) Consume(ctx context.Context, msg kafka.Message) error {
	d, err := metrics.Classify(msg.Topic, msg.Value, h.now())
	if errors.Is(err, metrics.ErrIgnored) {
		return nil
	}
	if err != nil {
		h.logger.Error("invalid event payload", "topic", msg.Topic, "err", err)
		return nil
	}
	if err := h.store.Apply(ctx, d); err != nil {
		h.logger.Error("failed to update daily metrics", "topic", msg.Topic, "err", err)
		return err
	}
	h.logger.Debug("metric recorded", "topic", msg.Topic, "day", d.Day.Format(dayLayout))
	return nil
}

type dailyResponse struct {
	From string               `json:"from"`
	To   string               `json:"to"`
	Days []metrics.DayMetrics `json:"days"`
}

// Daily serves counters for ?from=&to= (inclusive, UTC days). Admin only.
func (h *Handler) Daily(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(httpx.RoleHeader) != "admin" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	today := h.now().UTC().Truncate(24 * time.Hour)
	to, err := parseDay(r.URL.Query().Get("to"), today)
	if err != nil {
		http.Error(w, "invalid to (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	from, err := parseDay(r.URL.Query().Get("from"), to.AddDate(0, 0, -(defaultWin-1)))
	if err != nil {
		http.Error(w, "invalid from (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	if from.After(to) {
		http.Error(w, "from must not be after to", http.StatusBadRequest)
		return
	}
	if to.Sub(from) >= maxDays*24*time.Hour {
		http.Error(w, "range too large", http.StatusBadRequest)
		return
	}

	days, err := h.store.Daily(r.Context(), from, to)
	if err != nil {
		h.logger.Error("daily metrics query failed", "err", err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	if days == nil {
		days = []metrics.DayMetrics{}
	}
	httpx.WriteJSON(w, http.StatusOK, dailyResponse{
		From: from.Format(dayLayout),
		To:   to.Format(dayLayout),
		Days: days,
	})
}

func parseDay(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(dayLayout, raw)
}
