package cache

import (
	"context"
	"testing"
)

func TestResultsKey(t *testing.T) {
	got := ResultsKey("p1", 3, "premium", "Asia/Tokyo", true, 5)
	if got != "results:p1:v3:premium:Asia/Tokyo:true:5" {
		t.Fatalf("unexpected key %q", got)
	}
	if ResultsKey("p1", 3, "free", "UTC", false, 5) == ResultsKey("p1", 4, "free", "UTC", false, 5) {
		t.Fatalf("versions must not share a key")
	}
	if ResultsKey("p1", 3, "free", "UTC", false, 5) == ResultsKey("p1", 3, "premium", "UTC", false, 5) {
		t.Fatalf("tiers must not share a key")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected miss")
	}
	val := []byte("v1")
	if err := m.Set(ctx, "k", val); err != nil {
		t.Fatalf("set: %v", err)
	}
	val[0] = 'x'
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("unexpected get %q %v %v", got, ok, err)
	}
}

func TestNoop(t *testing.T) {
	var c Results = Noop{}
	_ = c.Set(context.Background(), "k", []byte("v"))
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Fatalf("noop cache must always miss")
	}
}
