package subscriptions

import (
	"time"

	"github.com/stripe/stripe-go/v79"
)

// FromStripe converts a Stripe subscription into a Change for userID.
func FromStripe(sub *stripe.Subscription, userID, tier string, occurredAt time.Time) Change {
	c := Change{
		UserID:               userID,
		Tier:                 tier,
		OccurredAt:           occurredAt,
		Provider:             "stripe",
		StripeSubscriptionID: sub.ID,
	}
	if sub.Customer != nil {
		c.StripeCustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		c.PeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		c.PeriodEnd = &t
	}
	return c
}

// Entitled treats only active and trialing subscriptions as paid.
func Entitled(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusActive || status == stripe.SubscriptionStatusTrialing
}
