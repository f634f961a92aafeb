package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
)

func TestPlan_ActiveKeepsLocalTierWhenMetadataMissing(t *testing.T) {
	local := storage.Subscription{UserID: "u1", Tier: "premium"}
	remote := &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Created:  1700000000,
		Customer: &stripe.Customer{ID: "cus_1"},
	}
	change, entitled := plan(local, remote, time.Now())
	if !entitled {
		t.Fatalf("expected entitled")
	}
	if change.UserID != "u1" || change.Tier != "premium" {
		t.Fatalf("unexpected change: %+v", change)
	}
	if change.StripeCustomerID != "cus_1" || change.StripeSubscriptionID != "sub_1" {
		t.Fatalf("unexpected stripe ids: %+v", change)
	}
	if !change.OccurredAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("occurred_at = %v", change.OccurredAt)
	}
}

func TestPlan_PastDueIsNotEntitled(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	remote := &stripe.Subscription{
		ID:       "sub_2",
		Status:   stripe.SubscriptionStatusPastDue,
		Metadata: map[string]string{"tier": "Premium"},
	}
	change, entitled := plan(storage.Subscription{UserID: "u2", Tier: "free"}, remote, now)
	if entitled {
		t.Fatalf("past_due must not be entitled")
	}
	if change.Tier != "premium" {
		t.Fatalf("tier = %q, want metadata tier", change.Tier)
	}
	if !change.OccurredAt.Equal(now) {
		t.Fatalf("occurred_at = %v, want now", change.OccurredAt)
	}
}

func TestSleep_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatalf("sleep should report cancellation")
	}
}
