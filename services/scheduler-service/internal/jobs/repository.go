package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/whenmeet/libs/otel"
)

// Job is the pending digest for one poll. Only the newest poll version wins.
type Job struct {
	ID          int64
	PollID      string
	Version     int64
	ShareCode   string
	Title       string
	PollURL     string
	TimeZone    string
	Recipient   string
	FirstSlot   string
	RemindAt    time.Time
	Traceparent string
	Tracestate  string
	Attempts    int
	MaxAttempts int
	NextRunAt   time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Upsert schedules job. A digest that was already sent stays sent unless the recipient
// or the reminder time changed.
func (r *Repository) Upsert(ctx context.Context, tx pgx.Tx, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO scheduler_jobs (poll_id, version, share_code, title, poll_url, time_zone, recipient, first_slot, remind_at, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $11)
		ON CONFLICT (poll_id)
		DO UPDATE SET version = EXCLUDED.version,
		              share_code = EXCLUDED.share_code,
		              title = EXCLUDED.title,
		              poll_url = EXCLUDED.poll_url,
		              time_zone = EXCLUDED.time_zone,
		              recipient = EXCLUDED.recipient,
		              first_slot = EXCLUDED.first_slot,
		              remind_at = EXCLUDED.remind_at,
		              next_run_at = EXCLUDED.next_run_at,
		              traceparent = EXCLUDED.traceparent,
		              tracestate = EXCLUDED.tracestate,
		              status = CASE
		                  WHEN scheduler_jobs.status = 'processed'
		                   AND scheduler_jobs.recipient = EXCLUDED.recipient
		                   AND scheduler_jobs.remind_at = EXCLUDED.remind_at THEN 'processed'
		                  ELSE 'pending'
		              END,
		              attempts = 0,
		              last_error = NULL,
		              updated_at = now()
		WHERE scheduler_jobs.version <= EXCLUDED.version
	`, job.PollID, job.Version, job.ShareCode, job.Title, job.PollURL, job.TimeZone, job.Recipient, job.FirstSlot, job.RemindAt, traceparent, tracestate)
	return err
}

func (r *Repository) Cancel(ctx context.Context, tx pgx.Tx, pollID string, version int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = 'canceled', version = $2, updated_at = now()
		WHERE poll_id = $1 AND status = 'pending' AND version <= $2
	`, pollID, version)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, poll_id, version, share_code, title, poll_url, time_zone, recipient, first_slot, remind_at,
		       COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, max_attempts, next_run_at
		FROM scheduler_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.PollID, &j.Version, &j.ShareCode, &j.Title, &j.PollURL, &j.TimeZone, &j.Recipient,
			&j.FirstSlot, &j.RemindAt, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := "pending"
	if attempts >= maxAttempts {
		status = "failed"
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
