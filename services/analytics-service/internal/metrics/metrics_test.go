package metrics

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestClassify(t *testing.T) {
	received := time.Date(2025, 2, 3, 23, 30, 0, 0, time.UTC)
	occurred := time.Date(2025, 2, 1, 22, 0, 0, 0, time.FixedZone("x", -5*3600)) // 2025-02-02 03:00 UTC
	wantDay := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)

	d, err := Classify(events.TopicPollCreated, mustJSON(t, events.PollChanged{PollID: "p1", OccurredAt: occurred}), received)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.PollsCreated != 1 || !d.Day.Equal(wantDay) || !d.HasPollCounters() || d.HasNotificationCounters() {
		t.Fatalf("unexpected delta: %+v", d)
	}

	d, err = Classify(events.TopicResponseUpdated, mustJSON(t, events.ResponseSubmitted{PollID: "p1"}), received)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.ResponsesUpdated != 1 || !d.Day.Equal(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("missing occurred_at should use the receive day: %+v", d)
	}

	d, err = Classify(events.TopicUserRegistered, mustJSON(t, events.UserRegistered{UserID: "u1", OccurredAt: occurred}), received)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.UsersRegistered != 1 || !d.Day.Equal(wantDay) || !d.HasPollCounters() {
		t.Fatalf("unexpected delta: %+v", d)
	}

	d, err = Classify(events.TopicNotificationFailed, mustJSON(t, events.NotificationResult{Channel: "webhook", OccurredAt: received}), received)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if d.Failed != 1 || d.Channel != "webhook" || !d.HasNotificationCounters() || d.HasPollCounters() {
		t.Fatalf("unexpected delta: %+v", d)
	}
}

func TestClassify_Rejects(t *testing.T) {
	now := time.Now()
	if _, err := Classify("billing.subscription.activated.v1", []byte(`{}`), now); !errors.Is(err, ErrIgnored) {
		t.Fatalf("expected ErrIgnored, got %v", err)
	}
	if _, err := Classify(events.TopicPollDeleted, []byte(`{`), now); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := Classify(events.TopicPollDeleted, []byte(`{"share_code":"x"}`), now); err == nil {
		t.Fatalf("expected missing poll_id error")
	}
	if _, err := Classify(events.TopicNotificationSent, []byte(`{"poll_id":"p1"}`), now); err == nil {
		t.Fatalf("expected missing channel error")
	}
}

func TestTopicsCoverClassifier(t *testing.T) {
	for _, topic := range Topics() {
		if _, err := Classify(topic, []byte(`{}`), time.Now()); errors.Is(err, ErrIgnored) {
			t.Fatalf("topic %s is subscribed but ignored", topic)
		}
	}
}
