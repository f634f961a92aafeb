// Package subscriptions applies plan changes and emits the matching outbox events. The
// webhook handlers and the reconciler share it.
package subscriptions

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
)

const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// Change describes the subscription state a provider reported.
type Change struct {
	UserID               string
	Tier                 string
	OccurredAt           time.Time
	Provider             string
	StripeCustomerID     string
	StripeSubscriptionID string
	PeriodStart          *time.Time
	PeriodEnd            *time.Time
}

type Service struct {
	repo   *storage.Repository
	outbox *outbox.Repository
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository) *Service {
	return &Service{repo: repo, outbox: outboxRepo}
}

func (s *Service) ApplyActivated(ctx context.Context, tx pgx.Tx, c Change) error {
	return s.apply(ctx, tx, c, StatusActive)
}

// ApplyCanceled drops the user back to the free tier.
func (s *Service) ApplyCanceled(ctx context.Context, tx pgx.Tx, c Change) error {
	c.Tier = entitlements.TierFree
	return s.apply(ctx, tx, c, StatusCanceled)
}

func (s *Service) apply(ctx context.Context, tx pgx.Tx, c Change, status string) error {
	existing, found, err := s.repo.GetSubscriptionForUpdate(ctx, tx, c.UserID)
	if err != nil {
		return err
	}
	next := storage.Subscription{
		UserID:               c.UserID,
		Tier:                 entitlements.NormalizeTier(c.Tier),
		Status:               status,
		Provider:             c.Provider,
		StripeCustomerID:     c.StripeCustomerID,
		StripeSubscriptionID: c.StripeSubscriptionID,
		CurrentPeriodStart:   c.PeriodStart,
		CurrentPeriodEnd:     c.PeriodEnd,
	}
	if err := s.repo.UpsertSubscription(ctx, tx, next); err != nil {
		return err
	}
	if !EntitlementChanged(existing, found, next) {
		return nil
	}
	evt, err := Event(next, c.OccurredAt)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}

// EntitlementChanged reports whether moving from existing to next changes what the user
// may do. Provider id refreshes alone do not fan out.
func EntitlementChanged(existing storage.Subscription, found bool, next storage.Subscription) bool {
	if !found {
		return true
	}
	return existing.Status != next.Status || existing.Tier != next.Tier
}

// Event builds the outbox event announcing sub's effective limits.
func Event(sub storage.Subscription, occurredAt time.Time) (outbox.Event, error) {
	topic := events.TopicSubscriptionActivated
	tier := sub.Tier
	if sub.Status != StatusActive {
		topic = events.TopicSubscriptionCanceled
		tier = entitlements.TierFree
	}
	limits := entitlements.LimitsForTier(tier)
	return outbox.NewEvent(events.AggregateSubscription, sub.UserID, topic, events.Subscription{
		UserID:     sub.UserID,
		Tier:       limits.Tier,
		Limits:     limits,
		OccurredAt: occurredAt.UTC(),
	})
}

// EffectiveTier is the tier a stored subscription grants right now.
func EffectiveTier(sub storage.Subscription, found bool) string {
	if !found || sub.Status != StatusActive {
		return entitlements.TierFree
	}
	return entitlements.NormalizeTier(sub.Tier)
}
