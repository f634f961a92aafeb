package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

// StripeReconciler periodically re-reads Stripe subscriptions so missed webhooks
// eventually converge.
type StripeReconciler struct {
	pool        *db.Pool
	repo        *storage.Repository
	subSvc      *subscriptions.Service
	logger      *slog.Logger
	stripeKey   string
	batchSize   int
	advisoryKey int64
	fetch       func(ctx context.Context, id string) (*stripe.Subscription, error)
}

type StripeReconcilerConfig struct {
	StripeSecretKey string
	BatchSize       int
	AdvisoryLockKey int64
}

func NewStripeReconciler(pool *db.Pool, repo *storage.Repository, subSvc *subscriptions.Service, logger *slog.Logger, cfg StripeReconcilerConfig) *StripeReconciler {
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = 50
	}
	lockKey := cfg.AdvisoryLockKey
	if lockKey == 0 {
		lockKey = 4242001
	}
	return &StripeReconciler{
		pool:        pool,
		repo:        repo,
		subSvc:      subSvc,
		logger:      logger,
		stripeKey:   strings.TrimSpace(cfg.StripeSecretKey),
		batchSize:   bs,
		advisoryKey: lockKey,
		fetch:       fetchStripeSubscription,
	}
}

func fetchStripeSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return stripesubscription.Get(id, params)
}

func (r *StripeReconciler) Run(ctx context.Context, interval time.Duration) {
	if r.stripeKey == "" {
		r.logger.Warn("stripe reconcile disabled: STRIPE_SECRET_KEY missing")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Only the instance holding the advisory lock reconciles.
	for {
		var locked bool
		if err := r.pool.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, r.advisoryKey).Scan(&locked); err != nil {
			r.logger.Error("stripe reconcile: failed to acquire advisory lock", "err", err)
			if !sleep(ctx, 5*time.Second) {
				return
			}
			continue
		}
		if locked {
			break
		}
		r.logger.Info("stripe reconcile: advisory lock held by another instance", "lock_key", r.advisoryKey)
		if !sleep(ctx, 30*time.Second) {
			return
		}
	}
	r.logger.Info("stripe reconcile: advisory lock acquired", "lock_key", r.advisoryKey)
	defer func() {
		_, _ = r.pool.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, r.advisoryKey)
	}()

	stripe.Key = r.stripeKey
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.reconcileOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcileOnce(ctx)
		}
	}
}

func (r *StripeReconciler) reconcileOnce(ctx context.Context) {
	subs, err := r.repo.ListStripeSubscriptionsForReconcile(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("stripe reconcile: failed to list subscriptions", "err", err)
		return
	}

	for _, s := range subs {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(s.StripeSubscriptionID) == "" || strings.TrimSpace(s.UserID) == "" {
			continue
		}
		remote, err := r.fetch(ctx, s.StripeSubscriptionID)
		if err != nil {
			r.logger.Warn("stripe reconcile: failed to fetch subscription", "err", err, "stripe_subscription_id", s.StripeSubscriptionID, "user_id", s.UserID)
			continue
		}

		change, entitled := plan(s, remote, time.Now().UTC())
		err = r.repo.InTx(ctx, func(tx pgx.Tx) error {
			if entitled {
				return r.subSvc.ApplyActivated(ctx, tx, change)
			}
			return r.subSvc.ApplyCanceled(ctx, tx, change)
		})
		if err != nil {
			r.logger.Warn("stripe reconcile: apply failed", "err", err, "user_id", s.UserID, "stripe_subscription_id", remote.ID)
		}
	}
}

// plan decides the change implied by Stripe's view of a subscription. Stripe owns the
// lifecycle status; the local tier is kept when Stripe metadata lacks one.
func plan(local storage.Subscription, remote *stripe.Subscription, now time.Time) (subscriptions.Change, bool) {
	tier := strings.TrimSpace(strings.ToLower(remote.Metadata["tier"]))
	if tier == "" {
		tier = local.Tier
	}
	entitled := subscriptions.Entitled(remote.Status)
	occurredAt := now
	switch {
	case entitled && remote.Created > 0:
		occurredAt = time.Unix(remote.Created, 0).UTC()
	case !entitled && remote.CanceledAt > 0:
		occurredAt = time.Unix(remote.CanceledAt, 0).UTC()
	}
	return subscriptions.FromStripe(remote, local.UserID, tier, occurredAt), entitled
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
