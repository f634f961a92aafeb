package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
)

// UserEntitlement is the locally cached tier of a poll owner, fed by billing events.
type UserEntitlement struct {
	UserID    string
	Tier      string
	UpdatedAt time.Time
}

type EntitlementRepository struct {
	pool *db.Pool
}

func NewEntitlementRepository(pool *db.Pool) *EntitlementRepository {
	return &EntitlementRepository{pool: pool}
}

// Upsert ignores events older than the stored row so replays cannot downgrade a user.
func (r *EntitlementRepository) Upsert(ctx context.Context, ent UserEntitlement) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_entitlements (user_id, tier, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET tier = EXCLUDED.tier, updated_at = EXCLUDED.updated_at
		WHERE user_entitlements.updated_at <= EXCLUDED.updated_at
	`, ent.UserID, ent.Tier, ent.UpdatedAt)
	return err
}

func (r *EntitlementRepository) Get(ctx context.Context, userID string) (UserEntitlement, bool, error) {
	var ent UserEntitlement
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, tier, updated_at
		FROM user_entitlements
		WHERE user_id = $1
	`, userID).Scan(&ent.UserID, &ent.Tier, &ent.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserEntitlement{}, false, nil
		}
		return UserEntitlement{}, false, err
	}
	return ent, true, nil
}
