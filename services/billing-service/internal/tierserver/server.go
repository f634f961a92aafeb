// Package tierserver answers the entitlements GetTier RPC from stored subscriptions.
package tierserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/subscriptions"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type SubscriptionReader interface {
	GetSubscription(ctx context.Context, userID string) (storage.Subscription, error)
}

type Server struct {
	subs   SubscriptionReader
	logger *slog.Logger
}

func New(subs SubscriptionReader, logger *slog.Logger) *Server {
	return &Server{subs: subs, logger: logger}
}

// GetTier returns free limits for users without a subscription. Storage failures surface
// as Unavailable so callers can apply their own fallback.
func (s *Server) GetTier(ctx context.Context, userID string) (entitlements.Limits, error) {
	sub, err := s.subs.GetSubscription(ctx, userID)
	found := true
	if errors.Is(err, storage.ErrNotFound) {
		found = false
	} else if err != nil {
		s.logger.Error("subscription lookup failed", "user_id", userID, "err", err)
		return entitlements.Limits{}, status.Error(codes.Unavailable, "subscription lookup failed")
	}
	return entitlements.LimitsForTier(subscriptions.EffectiveTier(sub, found)), nil
}

var _ entitlements.TierServer = (*Server)(nil)
