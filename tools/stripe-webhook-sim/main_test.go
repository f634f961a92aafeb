package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func TestBuildEventJSON_VerifiesWithWebhookLibrary(t *testing.T) {
	now := time.Now().UTC()
	payload, err := buildEventJSON(eventSpec{
		ID:             "evt_test_1",
		Type:           "customer.subscription.updated",
		Created:        now,
		UserID:         "user-1",
		Tier:           "premium",
		Status:         "active",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	const secret = "whsec_test"
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: now,
		Scheme:    "v1",
	})
	evt, err := webhook.ConstructEventWithTolerance(payload, signed.Header, secret, 5*time.Minute)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	if sub.Metadata["user_id"] != "user-1" || sub.Metadata["tier"] != "premium" {
		t.Fatalf("metadata = %v", sub.Metadata)
	}
	if sub.Status != stripe.SubscriptionStatusActive || sub.Customer == nil || sub.Customer.ID != "cus_1" {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestBuildEventJSON_DeletedForcesCanceled(t *testing.T) {
	payload, err := buildEventJSON(eventSpec{ID: "evt_2", Type: "customer.subscription.deleted", Created: time.Now(), Status: "active"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var evt struct {
		Data struct {
			Object map[string]any `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Data.Object["status"] != "canceled" {
		t.Fatalf("status = %v", evt.Data.Object["status"])
	}
}

func TestBuildEventJSON_UnsupportedType(t *testing.T) {
	if _, err := buildEventJSON(eventSpec{Type: "invoice.paid"}); err == nil {
		t.Fatalf("expected error")
	}
}
