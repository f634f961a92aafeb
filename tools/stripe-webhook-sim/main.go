// Command stripe-webhook-sim signs a synthetic Stripe event and posts it to the gateway,
// exercising the billing webhook without a Stripe account.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/config"
	"github.com/md-rashed-zaman/whenmeet/libs/runtime"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type eventSpec struct {
	ID             string
	Type           string
	Created        time.Time
	UserID         string
	Tier           string
	Status         string
	SessionID      string
	CustomerID     string
	SubscriptionID string
}

func main() {
	if err := runtime.LoadEnvFiles(); err != nil {
		fatal(err.Error())
	}
	var (
		baseURL  = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "gateway base url")
		evtType  = flag.String("type", config.String("STRIPE_EVENT_TYPE", "checkout.session.completed"), "stripe event type")
		userID   = flag.String("user-id", config.String("USER_ID", ""), "user_id metadata")
		tier     = flag.String("tier", config.String("TIER", "premium"), "tier metadata")
		status   = flag.String("status", config.String("SUBSCRIPTION_STATUS", "active"), "subscription status for customer.subscription.* events")
		secret   = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
		session  = flag.String("session-id", config.String("STRIPE_SESSION_ID", "cs_test_123"), "checkout session id")
		customer = flag.String("customer-id", config.String("STRIPE_CUSTOMER_ID", "cus_test_123"), "stripe customer id")
		sub      = flag.String("subscription-id", config.String("STRIPE_SUBSCRIPTION_ID", "sub_test_123"), "stripe subscription id")
		timeout  = flag.Duration("timeout", 10*time.Second, "request timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*userID) == "" {
		fatal("USER_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(eventSpec{
		ID:             fmt.Sprintf("evt_test_%d", now.UnixNano()),
		Type:           *evtType,
		Created:        now,
		UserID:         *userID,
		Tier:           *tier,
		Status:         *status,
		SessionID:      *session,
		CustomerID:     *customer,
		SubscriptionID: *sub,
	})
	if err != nil {
		fatal(err.Error())
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/billing/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

// buildEventJSON stamps the library's API version; the webhook verifier rejects events
// from any other version.
func buildEventJSON(ev eventSpec) ([]byte, error) {
	metadata := map[string]string{
		"user_id": ev.UserID,
		"tier":    ev.Tier,
	}
	var object map[string]any
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.expired":
		object = map[string]any{
			"id":           ev.SessionID,
			"object":       "checkout.session",
			"mode":         "subscription",
			"customer":     ev.CustomerID,
			"subscription": ev.SubscriptionID,
			"metadata":     metadata,
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		status := ev.Status
		if ev.Type == "customer.subscription.deleted" {
			status = "canceled"
		}
		object = map[string]any{
			"id":                   ev.SubscriptionID,
			"object":               "subscription",
			"status":               status,
			"customer":             ev.CustomerID,
			"current_period_start": ev.Created.Unix(),
			"current_period_end":   ev.Created.AddDate(0, 1, 0).Unix(),
			"metadata":             metadata,
		}
	default:
		return nil, fmt.Errorf("unsupported event type: %s", ev.Type)
	}
	return json.Marshal(map[string]any{
		"id":          ev.ID,
		"object":      "event",
		"created":     ev.Created.Unix(),
		"type":        ev.Type,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
