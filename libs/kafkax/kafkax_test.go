package kafkax

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,redpanda:29092 ")
	want := []string{"kafka:9092", "redpanda:29092"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestExtractEventMeta_FallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "poll.created.v1", Key: []byte("p-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "p-1" || meta.EventType != "poll.created.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	msg = NewMessage(EventMeta{EventID: "e-9", EventType: "poll.updated.v1"}, "p-1", []byte(`{}`))
	meta = ExtractEventMeta(msg)
	if meta.EventID != "e-9" || meta.EventType != "poll.updated.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if msg.Topic != "poll.updated.v1" || string(msg.Key) != "p-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e-1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("traceparent header not injected: %+v", headers)
	}
	if HeaderValue(headers, HeaderEventID) != "e-1" {
		t.Fatalf("existing header lost")
	}

	out := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if out.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", out.TraceID())
	}
}

type memInbox struct {
	seen map[string]bool
	err  error
}

func (m *memInbox) Record(_ context.Context, eventID string, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func TestConsumerProcess_DedupesThroughInbox(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	calls := 0
	c := &Consumer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		inbox:  inbox,
		handler: func(ctx context.Context, msg kafka.Message) error {
			calls++
			return nil
		},
	}
	msg := NewMessage(EventMeta{EventID: "e-1", EventType: "poll.response.submitted.v1"}, "p-1", nil)
	c.process(context.Background(), msg)
	c.process(context.Background(), msg)
	if calls != 1 {
		t.Fatalf("expected handler once, got %d", calls)
	}

	inbox.err = errors.New("db down")
	c.process(context.Background(), NewMessage(EventMeta{EventID: "e-2", EventType: "x"}, "k", nil))
	if calls != 1 {
		t.Fatalf("handler must not run when inbox fails")
	}
}
