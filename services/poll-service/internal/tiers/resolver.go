// Package tiers resolves a poll owner's plan: the Kafka-fed local cache first,
// then billing-service over gRPC, then the free tier.
package tiers

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/storage"
)

type Cache interface {
	Get(ctx context.Context, userID string) (storage.UserEntitlement, bool, error)
}

type Remote interface {
	GetTier(ctx context.Context, userID string) (entitlements.Limits, error)
}

type Resolver struct {
	cache   Cache
	remote  Remote
	logger  *slog.Logger
	timeout time.Duration
}

// NewResolver accepts a nil cache or remote; missing sources are skipped.
func NewResolver(cache Cache, remote Remote, logger *slog.Logger, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{cache: cache, remote: remote, logger: logger, timeout: timeout}
}

// Limits never fails. Anonymous owners and unreachable sources resolve to the free tier.
func (r *Resolver) Limits(ctx context.Context, userID string) entitlements.Limits {
	if userID == "" {
		return entitlements.LimitsForTier(entitlements.TierFree)
	}

	if r.cache != nil {
		ent, ok, err := r.cache.Get(ctx, userID)
		switch {
		case err != nil:
			r.logger.Warn("entitlement cache lookup failed", "user_id", userID, "err", err)
		case ok:
			return entitlements.LimitsForTier(ent.Tier)
		}
	}

	if r.remote != nil {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		limits, err := r.remote.GetTier(callCtx, userID)
		if err == nil {
			return limits
		}
		r.logger.Warn("entitlement rpc failed; using free tier", "user_id", userID, "err", err)
	}
	return entitlements.LimitsForTier(entitlements.TierFree)
}
