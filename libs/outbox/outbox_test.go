package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/md-rashed-zaman/whenmeet/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("poll", "p-1", "poll.created.v1", map[string]string{"title": "Standup"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(evt.Payload, &got); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if got["title"] != "Standup" || evt.AggregateID != "p-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}

	if _, err := NewEvent("poll", "p-1", "poll.created.v1", func() {}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestBuildMessage_CarriesMetaAndTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	r := Record{
		EventID:     "5b0c3f0e-3a1c-4d7a-9d0c-6e2b8f1a9c11",
		AggregateID: "p-1",
		EventType:   "poll.response.submitted.v1",
		Payload:     []byte(`{"poll_id":"p-1"}`),
		Traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	msg := BuildMessage(context.Background(), r)
	if msg.Topic != r.EventType || string(msg.Key) != "p-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID) != r.EventID {
		t.Fatalf("missing event id header")
	}
	if kafkax.HeaderValue(msg.Headers, "traceparent") != r.Traceparent {
		t.Fatalf("traceparent not propagated: %q", kafkax.HeaderValue(msg.Headers, "traceparent"))
	}
}
