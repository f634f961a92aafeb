package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/segmentio/kafka-go"
)

// Topics are the poll lifecycle events that move digest jobs.
func Topics() []string {
	return []string{events.TopicPollCreated, events.TopicPollUpdated, events.TopicPollDeleted}
}

type Handler struct {
	pool    *db.Pool
	repo    *Repository
	planner Planner
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(pool *db.Pool, repo *Repository, planner Planner, logger *slog.Logger) *Handler {
	return &Handler{pool: pool, repo: repo, planner: planner, logger: logger, now: time.Now}
}

// Handle applies one poll event. Undecodable payloads are logged and dropped; storage
// errors are returned so the consumer can report them.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.PollChanged
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		h.logger.Error("invalid poll event", "topic", msg.Topic, "err", err)
		return nil
	}
	d, err := h.planner.Plan(msg.Topic, evt, h.now())
	if err != nil {
		h.logger.Error("invalid poll event", "topic", msg.Topic, "err", err)
		return nil
	}
	if d.Action == ActionIgnore {
		return nil
	}
	err = h.pool.InTx(ctx, func(tx pgx.Tx) error {
		if d.Action == ActionCancel {
			return h.repo.Cancel(ctx, tx, d.Job.PollID, d.Job.Version)
		}
		return h.repo.Upsert(ctx, tx, d.Job)
	})
	if err != nil {
		return err
	}
	h.logger.Debug("digest job updated", "poll_id", d.Job.PollID, "action", d.Action.String(), "remind_at", d.Job.RemindAt)
	return nil
}
