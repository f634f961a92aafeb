package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// PollRepository stores polls and responses in Postgres. Every write commits together
// with the outbox events passed to it.
type PollRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPollRepository(pool *db.Pool, outboxRepo *outbox.Repository) *PollRepository {
	return &PollRepository{pool: pool, outbox: outboxRepo}
}

const pollColumns = `id::text, share_code, slug, COALESCE(owner_id, ''), admin_token_hash, title, description,
	dates, time_range_start, time_range_end, slot_duration, time_zone, tier,
	COALESCE(password_hash, ''), COALESCE(brand_color, ''), COALESCE(notify_email, ''), COALESCE(webhook_url, ''),
	version, created_at, updated_at`

func scanPoll(row pgx.Row) (model.Poll, error) {
	var p model.Poll
	var dates []byte
	err := row.Scan(&p.ID, &p.ShareCode, &p.Slug, &p.OwnerID, &p.AdminTokenHash, &p.Title, &p.Description,
		&dates, &p.TimeRangeStart, &p.TimeRangeEnd, &p.SlotDuration, &p.TimeZone, &p.Tier,
		&p.PasswordHash, &p.BrandColor, &p.NotifyEmail, &p.WebhookURL,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Poll{}, ErrNotFound
		}
		return model.Poll{}, err
	}
	if err := json.Unmarshal(dates, &p.Dates); err != nil {
		return model.Poll{}, fmt.Errorf("decode dates of poll %s: %w", p.ID, err)
	}
	return p, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PollRepository) insertEvents(ctx context.Context, tx pgx.Tx, events []outbox.Event) error {
	for _, evt := range events {
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("outbox %s: %w", evt.EventType, err)
		}
	}
	return nil
}

func (r *PollRepository) CreatePoll(ctx context.Context, p *model.Poll, events ...outbox.Event) error {
	dates, err := json.Marshal(p.Dates)
	if err != nil {
		return err
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO polls (id, share_code, slug, owner_id, admin_token_hash, title, description,
				dates, time_range_start, time_range_end, slot_duration, time_zone, tier,
				password_hash, brand_color, notify_email, webhook_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING version, created_at, updated_at
		`, p.ID, p.ShareCode, p.Slug, nullable(p.OwnerID), p.AdminTokenHash, p.Title, p.Description,
			dates, p.TimeRangeStart, p.TimeRangeEnd, p.SlotDuration, p.TimeZone, p.Tier,
			nullable(p.PasswordHash), nullable(p.BrandColor), nullable(p.NotifyEmail), nullable(p.WebhookURL),
		).Scan(&p.Version, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrConflict
			}
			return err
		}
		return r.insertEvents(ctx, tx, events)
	})
}

// UpdatePoll rewrites the envelope of p and bumps its version.
func (r *PollRepository) UpdatePoll(ctx context.Context, p *model.Poll, events ...outbox.Event) error {
	dates, err := json.Marshal(p.Dates)
	if err != nil {
		return err
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE polls
			SET title = $2, description = $3, dates = $4, time_range_start = $5, time_range_end = $6,
				slot_duration = $7, time_zone = $8, tier = $9, password_hash = $10, brand_color = $11,
				notify_email = $12, webhook_url = $13, slug = $14,
				version = version + 1, updated_at = now()
			WHERE id = $1
			RETURNING version, updated_at
		`, p.ID, p.Title, p.Description, dates, p.TimeRangeStart, p.TimeRangeEnd,
			p.SlotDuration, p.TimeZone, p.Tier, nullable(p.PasswordHash), nullable(p.BrandColor),
			nullable(p.NotifyEmail), nullable(p.WebhookURL), p.Slug,
		).Scan(&p.Version, &p.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return r.insertEvents(ctx, tx, events)
	})
}

func (r *PollRepository) DeletePoll(ctx context.Context, id string, events ...outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return r.insertEvents(ctx, tx, events)
	})
}

func (r *PollRepository) PollByID(ctx context.Context, id string) (model.Poll, error) {
	return scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
}

func (r *PollRepository) PollByShareCode(ctx context.Context, code string) (model.Poll, error) {
	return scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE share_code = $1`, code))
}

// AddResponse inserts resp once admit accepts the current respondent count; the events
// admit returns commit with it. The poll row is locked so concurrent submissions cannot
// overshoot the cap.
func (r *PollRepository) AddResponse(ctx context.Context, resp *model.Response, admit func(current int) ([]outbox.Event, error)) error {
	selections, err := json.Marshal(resp.SelectedSlots)
	if err != nil {
		return err
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id::text FROM polls WHERE id = $1 FOR UPDATE`, resp.PollID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		var current int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM poll_responses WHERE poll_id = $1`, resp.PollID).Scan(&current); err != nil {
			return err
		}
		var events []outbox.Event
		if admit != nil {
			var err error
			if events, err = admit(current); err != nil {
				return err
			}
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO poll_responses (id, poll_id, respondent_name, respondent_email, selected_slots, edit_token_hash)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`, resp.ID, resp.PollID, resp.RespondentName, nullable(resp.RespondentEmail), selections, resp.EditTokenHash,
		).Scan(&resp.CreatedAt, &resp.UpdatedAt)
		if err != nil {
			return err
		}
		if err := bumpVersion(ctx, tx, resp.PollID); err != nil {
			return err
		}
		return r.insertEvents(ctx, tx, events)
	})
}

func (r *PollRepository) UpdateResponse(ctx context.Context, resp *model.Response, events ...outbox.Event) error {
	selections, err := json.Marshal(resp.SelectedSlots)
	if err != nil {
		return err
	}
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE poll_responses
			SET respondent_name = $3, respondent_email = $4, selected_slots = $5, updated_at = now()
			WHERE id = $1 AND poll_id = $2
			RETURNING updated_at
		`, resp.ID, resp.PollID, resp.RespondentName, nullable(resp.RespondentEmail), selections).Scan(&resp.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := bumpVersion(ctx, tx, resp.PollID); err != nil {
			return err
		}
		return r.insertEvents(ctx, tx, events)
	})
}

func (r *PollRepository) ResponseByID(ctx context.Context, pollID, id string) (model.Response, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, poll_id::text, respondent_name, COALESCE(respondent_email, ''), selected_slots,
			edit_token_hash, created_at, updated_at
		FROM poll_responses
		WHERE id = $1 AND poll_id = $2
	`, id, pollID)
	resp, err := scanResponse(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Response{}, ErrNotFound
	}
	return resp, err
}

// ListResponses returns responses in submission order.
func (r *PollRepository) ListResponses(ctx context.Context, pollID string) ([]model.Response, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, poll_id::text, respondent_name, COALESCE(respondent_email, ''), selected_slots,
			edit_token_hash, created_at, updated_at
		FROM poll_responses
		WHERE poll_id = $1
		ORDER BY created_at, id
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

func scanResponse(row pgx.Row) (model.Response, error) {
	var resp model.Response
	var selections []byte
	if err := row.Scan(&resp.ID, &resp.PollID, &resp.RespondentName, &resp.RespondentEmail, &selections,
		&resp.EditTokenHash, &resp.CreatedAt, &resp.UpdatedAt); err != nil {
		return model.Response{}, err
	}
	if err := json.Unmarshal(selections, &resp.SelectedSlots); err != nil {
		return model.Response{}, fmt.Errorf("decode selections of response %s: %w", resp.ID, err)
	}
	return resp, nil
}

func bumpVersion(ctx context.Context, tx pgx.Tx, pollID string) error {
	_, err := tx.Exec(ctx, `UPDATE polls SET version = version + 1, updated_at = now() WHERE id = $1`, pollID)
	return err
}
