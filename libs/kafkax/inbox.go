package kafkax

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
)

// PgInbox dedupes consumed events through a unique key on inbox_events.event_id.
type PgInbox struct {
	pool *db.Pool
}

func NewPgInbox(pool *db.Pool) *PgInbox {
	return &PgInbox{pool: pool}
}

func (r *PgInbox) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	return false, err
}
