package tiers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memCache struct {
	rows map[string]storage.UserEntitlement
	err  error
}

func (m *memCache) Get(_ context.Context, userID string) (storage.UserEntitlement, bool, error) {
	if m.err != nil {
		return storage.UserEntitlement{}, false, m.err
	}
	ent, ok := m.rows[userID]
	return ent, ok, nil
}

func (m *memCache) Upsert(_ context.Context, ent storage.UserEntitlement) error {
	if m.rows == nil {
		m.rows = map[string]storage.UserEntitlement{}
	}
	m.rows[ent.UserID] = ent
	return nil
}

type stubRemote struct {
	tier  string
	err   error
	calls int
}

func (s *stubRemote) GetTier(context.Context, string) (entitlements.Limits, error) {
	s.calls++
	if s.err != nil {
		return entitlements.Limits{}, s.err
	}
	return entitlements.LimitsForTier(s.tier), nil
}

func TestResolver_Order(t *testing.T) {
	cache := &memCache{rows: map[string]storage.UserEntitlement{"u-cached": {UserID: "u-cached", Tier: "premium"}}}
	remote := &stubRemote{tier: "premium"}
	r := NewResolver(cache, remote, discard, time.Second)
	ctx := context.Background()

	if got := r.Limits(ctx, "u-cached"); got.Tier != entitlements.TierPremium || remote.calls != 0 {
		t.Fatalf("cache hit should not call remote: %+v calls=%d", got, remote.calls)
	}
	if got := r.Limits(ctx, "u-remote"); got.Tier != entitlements.TierPremium || remote.calls != 1 {
		t.Fatalf("cache miss should call remote: %+v calls=%d", got, remote.calls)
	}
	if got := r.Limits(ctx, ""); got.Tier != entitlements.TierFree || remote.calls != 1 {
		t.Fatalf("anonymous owner must be free without lookups: %+v", got)
	}

	remote.err = errors.New("unavailable")
	cache.err = errors.New("db down")
	if got := r.Limits(ctx, "u-remote"); got.Tier != entitlements.TierFree {
		t.Fatalf("failures must fall back to free, got %+v", got)
	}

	if got := NewResolver(nil, nil, discard, 0).Limits(ctx, "anyone"); got.Tier != entitlements.TierFree {
		t.Fatalf("no sources means free, got %+v", got)
	}
}

func TestHandler_AppliesSubscriptionEvents(t *testing.T) {
	store := &memCache{}
	h := Handler(store, discard)
	ctx := context.Background()

	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	err := h(ctx, kafka.Message{
		Topic: TopicSubscriptionActivated,
		Value: []byte(`{"user_id":"u-1","tier":"premium","occurred_at":"2025-01-15T09:00:00Z"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.rows["u-1"]; got.Tier != entitlements.TierPremium || !got.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected row: %+v", got)
	}

	if err := h(ctx, kafka.Message{Topic: TopicSubscriptionCanceled, Value: []byte(`{"user_id":"u-1","tier":"premium"}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.rows["u-1"]; got.Tier != entitlements.TierFree {
		t.Fatalf("cancellation must downgrade to free, got %+v", got)
	}

	if err := h(ctx, kafka.Message{Topic: TopicSubscriptionActivated, Value: []byte(`not json`)}); err != nil {
		t.Fatalf("malformed payloads are skipped, got %v", err)
	}
	if err := h(ctx, kafka.Message{Topic: TopicSubscriptionActivated, Value: []byte(`{"tier":"premium"}`)}); err != nil {
		t.Fatalf("payloads without user are skipped, got %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("unexpected rows: %+v", store.rows)
	}
}
