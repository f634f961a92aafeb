package tiers

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	TopicSubscriptionActivated = events.TopicSubscriptionActivated
	TopicSubscriptionCanceled  = events.TopicSubscriptionCanceled
)

type Store interface {
	Upsert(ctx context.Context, ent storage.UserEntitlement) error
}

// Handler returns a kafkax handler that mirrors subscription events into store.
// Malformed payloads are logged and skipped; store failures are returned.
func Handler(store Store, logger *slog.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt events.Subscription
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid subscription event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		evt.UserID = strings.TrimSpace(evt.UserID)
		if evt.UserID == "" {
			logger.Error("subscription event without user_id", "topic", msg.Topic)
			return nil
		}

		tier := entitlements.NormalizeTier(evt.Tier)
		if msg.Topic == TopicSubscriptionCanceled {
			tier = entitlements.TierFree
		}
		at := evt.OccurredAt
		if at.IsZero() {
			at = msg.Time
		}
		if at.IsZero() {
			at = time.Now().UTC()
		}

		logger.Info("entitlement updated", "user_id", evt.UserID, "tier", tier, "topic", msg.Topic)
		return store.Upsert(ctx, storage.UserEntitlement{UserID: evt.UserID, Tier: tier, UpdatedAt: at})
	}
}
