package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	PollID     string
	ResponseID string
	Channel    string
	Recipient  string
	ProviderID string
	Status     string
	Error      string
	Payload    any
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

// Record stores a delivery attempt and enqueues notification.sent/failed in the same
// transaction.
func (r *Repository) Record(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	topic := events.TopicNotificationSent
	if n.Status != StatusSent {
		topic = events.TopicNotificationFailed
	}
	aggregateID := n.ResponseID
	if aggregateID == "" {
		aggregateID = n.PollID
	}
	evt, err := outbox.NewEvent(events.AggregateNotification, aggregateID, topic, events.NotificationResult{
		PollID:     n.PollID,
		ResponseID: n.ResponseID,
		Channel:    n.Channel,
		ProviderID: n.ProviderID,
		Error:      n.Error,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO notifications (poll_id, response_id, channel, recipient, provider_id, status, error, payload)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		`, n.PollID, n.ResponseID, n.Channel, n.Recipient, n.ProviderID, n.Status, n.Error, payload); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}
