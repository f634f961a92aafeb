package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	applied  []metrics.Delta
	from, to time.Time
	err      error
}

func (m *memStore) Apply(_ context.Context, d metrics.Delta) error {
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, d)
	return nil
}

func (m *memStore) Daily(_ context.Context, from, to time.Time) ([]metrics.DayMetrics, error) {
	m.from, m.to = from, to
	return []metrics.DayMetrics{{Day: from.Format(dayLayout), PollsCreated: 2}}, nil
}

func newTestHandler(store *memStore) *Handler {
	h := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.now = func() time.Time { return time.Date(2025, 3, 31, 15, 0, 0, 0, time.UTC) }
	return h
}

func TestConsume(t *testing.T) {
	store := &memStore{}
	h := newTestHandler(store)
	raw, _ := json.Marshal(events.PollChanged{PollID: "p1"})

	if err := h.Consume(context.Background(), kafka.Message{Topic: events.TopicPollCreated, Value: raw}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := h.Consume(context.Background(), kafka.Message{Topic: "other.topic", Value: raw}); err != nil {
		t.Fatalf("ignored topic: %v", err)
	}
	if err := h.Consume(context.Background(), kafka.Message{Topic: events.TopicPollCreated, Value: []byte("{")}); err != nil {
		t.Fatalf("malformed payload should be dropped: %v", err)
	}
	if len(store.applied) != 1 || store.applied[0].PollsCreated != 1 {
		t.Fatalf("applied = %+v", store.applied)
	}

	store.err = errors.New("db down")
	if err := h.Consume(context.Background(), kafka.Message{Topic: events.TopicPollCreated, Value: raw}); err == nil {
		t.Fatalf("expected store error")
	}
}

func get(h *Handler, target, role string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		req.Header.Set(httpx.RoleHeader, role)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDaily(t *testing.T) {
	store := &memStore{}
	h := newTestHandler(store)

	if rec := get(h, "/api/v1/analytics/daily", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", rec.Code)
	}

	rec := get(h, "/api/v1/analytics/daily", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	var body dailyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.From != "2025-03-02" || body.To != "2025-03-31" {
		t.Fatalf("default window = %s..%s", body.From, body.To)
	}
	if len(body.Days) != 1 || body.Days[0].PollsCreated != 2 {
		t.Fatalf("days = %+v", body.Days)
	}

	for _, q := range []string{"?from=2025-13-01", "?from=2025-03-10&to=2025-03-01", "?from=2023-01-01&to=2025-01-01"} {
		if rec := get(h, "/api/v1/analytics/daily"+q, "admin"); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", q, rec.Code)
		}
	}
}
