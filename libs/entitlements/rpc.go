package entitlements

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service speaks well-known protobuf types so neither side needs generated stubs:
// the request is a StringValue user id and the reply a Struct of Limits.
const (
	ServiceName   = "whenmeet.entitlements.v1.EntitlementsService"
	GetTierMethod = "/" + ServiceName + "/GetTier"
)

// TierServer resolves the active tier of a user.
type TierServer interface {
	GetTier(ctx context.Context, userID string) (Limits, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetTier", Handler: getTierHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "whenmeet/entitlements/v1/entitlements.proto",
}

func RegisterTierServer(s grpc.ServiceRegistrar, srv TierServer) {
	s.RegisterService(&serviceDesc, srv)
}

func getTierHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		userID := req.(*wrapperspb.StringValue).GetValue()
		if userID == "" {
			return nil, status.Error(codes.InvalidArgument, "user id is required")
		}
		limits, err := srv.(TierServer).GetTier(ctx, userID)
		if err != nil {
			return nil, err
		}
		return ToStruct(limits)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetTierMethod}
	return interceptor(ctx, in, info, call)
}

type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetTier(ctx context.Context, userID string) (Limits, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetTierMethod, wrapperspb.String(userID), out); err != nil {
		return Limits{}, err
	}
	return FromStruct(out)
}

func ToStruct(l Limits) (*structpb.Struct, error) {
	durations := make([]any, 0, len(l.AllowedSlotDurations))
	for _, d := range l.AllowedSlotDurations {
		durations = append(durations, d)
	}
	return structpb.NewStruct(map[string]any{
		"tier":                   l.Tier,
		"max_participants":       l.MaxParticipants,
		"max_dates":              l.MaxDates,
		"allowed_slot_durations": durations,
		"features": map[string]any{
			"password_protection": l.Features.PasswordProtection,
			"custom_branding":     l.Features.CustomBranding,
		},
	})
}

// FromStruct trusts only the tier name of a reply; the limits come from LimitsForTier
// so a stale peer cannot widen them.
func FromStruct(s *structpb.Struct) (Limits, error) {
	if s == nil {
		return Limits{}, errors.New("empty entitlements reply")
	}
	v, ok := s.GetFields()["tier"]
	if !ok {
		return Limits{}, errors.New("entitlements reply missing tier")
	}
	tier, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return Limits{}, fmt.Errorf("entitlements reply tier has kind %T", v.GetKind())
	}
	return LimitsForTier(tier.StringValue), nil
}
