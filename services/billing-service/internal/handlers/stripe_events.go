package handlers

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
)

const (
	metadataUserID = "user_id"
	metadataTier   = "tier"
)

type stripeAction int

const (
	actionIgnore stripeAction = iota
	actionActivate
	actionCancel
	actionSessionExpired
)

type stripeOutcome struct {
	action    stripeAction
	change    subscriptions.Change
	sessionID string
	// reason explains an ignored event in logs.
	reason string
}

// interpretStripeEvent maps a verified Stripe event onto a subscription change. Events
// without user metadata, or for non-entitled statuses, are ignored rather than failed so
// Stripe stops retrying them.
func interpretStripeEvent(evt stripe.Event) (stripeOutcome, error) {
	occurredAt := time.Unix(evt.Created, 0).UTC()
	if evt.Data == nil {
		return stripeOutcome{reason: "event without data"}, nil
	}

	switch evt.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return stripeOutcome{}, fmt.Errorf("checkout session payload: %w", err)
		}
		userID, tier := metadata(session.Metadata)
		if userID == "" || tier == "" {
			return stripeOutcome{reason: "checkout session without user_id/tier metadata"}, nil
		}
		c := subscriptions.Change{UserID: userID, Tier: tier, OccurredAt: occurredAt, Provider: "stripe"}
		if session.Customer != nil {
			c.StripeCustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			c.StripeSubscriptionID = session.Subscription.ID
		}
		return stripeOutcome{action: actionActivate, change: c, sessionID: session.ID}, nil

	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return stripeOutcome{}, fmt.Errorf("checkout session payload: %w", err)
		}
		return stripeOutcome{action: actionSessionExpired, sessionID: session.ID}, nil

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return stripeOutcome{}, fmt.Errorf("subscription payload: %w", err)
		}
		userID, tier := metadata(sub.Metadata)
		if userID == "" {
			return stripeOutcome{reason: "subscription without user_id metadata"}, nil
		}
		c := subscriptions.FromStripe(&sub, userID, tier, occurredAt)
		if evt.Type == "customer.subscription.deleted" || !subscriptions.Entitled(sub.Status) {
			return stripeOutcome{action: actionCancel, change: c}, nil
		}
		if tier == "" {
			return stripeOutcome{reason: "subscription without tier metadata"}, nil
		}
		return stripeOutcome{action: actionActivate, change: c}, nil
	}
	return stripeOutcome{reason: "unhandled event type"}, nil
}

func metadata(md map[string]string) (userID, tier string) {
	return strings.TrimSpace(md[metadataUserID]), strings.TrimSpace(strings.ToLower(md[metadataTier]))
}
