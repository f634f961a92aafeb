package entitlements

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type staticTiers map[string]string

func (s staticTiers) GetTier(_ context.Context, userID string) (Limits, error) {
	return LimitsForTier(s[userID]), nil
}

func TestClient_GetTier(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterTierServer(srv, staticTiers{"user-premium": "premium"})
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := NewClient(conn)
	limits, err := client.GetTier(ctx, "user-premium")
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if limits.Tier != TierPremium || !limits.Unlimited() {
		t.Fatalf("unexpected limits: %+v", limits)
	}

	limits, err = client.GetTier(ctx, "someone-else")
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if limits.Tier != TierFree {
		t.Fatalf("expected free, got %+v", limits)
	}

	_, err = client.GetTier(ctx, "")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestFromStruct(t *testing.T) {
	s, err := ToStruct(LimitsForTier(TierPremium))
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}
	if got := s.GetFields()["max_dates"].GetNumberValue(); got != 365 {
		t.Fatalf("unexpected max_dates %v", got)
	}
	limits, err := FromStruct(s)
	if err != nil || limits.Tier != TierPremium {
		t.Fatalf("unexpected round trip: %+v %v", limits, err)
	}

	if _, err := FromStruct(&structpb.Struct{}); err == nil {
		t.Fatalf("expected error for reply without tier")
	}
	if _, err := FromStruct(nil); err == nil {
		t.Fatalf("expected error for nil reply")
	}
}
