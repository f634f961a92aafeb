package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
)

// Worker moves due digest jobs into the outbox.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("digest batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	return w.pool.InTx(ctx, func(tx pgx.Tx) error {
		jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
		if err != nil || len(jobs) == 0 {
			return err
		}

		var ids []int64
		for _, job := range jobs {
			jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
			if err := w.enqueue(jobCtx, tx, events.TopicDigestDue, DueEvent(job)); err != nil {
				if err := w.fail(jobCtx, tx, job, err); err != nil {
					return err
				}
				continue
			}
			ids = append(ids, job.ID)
		}
		if len(ids) > 0 {
			w.logger.Info("digests enqueued", "count", len(ids))
		}
		return w.repo.MarkProcessed(ctx, tx, ids)
	})
}

// enqueue runs inside a savepoint so one bad job does not abort the batch transaction.
func (w *Worker) enqueue(ctx context.Context, tx pgx.Tx, topic string, payload events.DigestDue) error {
	evt, err := outbox.NewEvent(events.AggregateDigest, payload.PollID, topic, payload)
	if err != nil {
		return err
	}
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := w.outbox.Insert(ctx, sp, evt); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func (w *Worker) fail(ctx context.Context, tx pgx.Tx, job Job, cause error) error {
	attempts := job.Attempts + 1
	w.logger.Warn("digest enqueue failed", "poll_id", job.PollID, "attempts", attempts, "err", cause)
	nextRunAt := time.Now().UTC().Add(w.backoff * time.Duration(attempts))
	if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, cause.Error()); err != nil {
		return err
	}
	if attempts < job.MaxAttempts {
		return nil
	}
	dead := DueEvent(job)
	dead.Attempts = attempts
	dead.Reason = cause.Error()
	return w.enqueue(ctx, tx, events.TopicDigestDLQ, dead)
}
