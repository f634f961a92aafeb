package metrics

import (
	"context"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/db"
)

type ChannelCounts struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type DayMetrics struct {
	Day                string                   `json:"day"`
	PollsCreated       int                      `json:"polls_created"`
	PollsUpdated       int                      `json:"polls_updated"`
	PollsDeleted       int                      `json:"polls_deleted"`
	ResponsesSubmitted int                      `json:"responses_submitted"`
	ResponsesUpdated   int                      `json:"responses_updated"`
	UsersRegistered    int                      `json:"users_registered"`
	Notifications      map[string]ChannelCounts `json:"notifications"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Apply(ctx context.Context, d Delta) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if d.HasPollCounters() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO daily_poll_metrics (day, polls_created, polls_updated, polls_deleted, responses_submitted, responses_updated, users_registered)
				VALUES ($1::date, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (day)
				DO UPDATE SET polls_created = daily_poll_metrics.polls_created + EXCLUDED.polls_created,
				              polls_updated = daily_poll_metrics.polls_updated + EXCLUDED.polls_updated,
				              polls_deleted = daily_poll_metrics.polls_deleted + EXCLUDED.polls_deleted,
				              responses_submitted = daily_poll_metrics.responses_submitted + EXCLUDED.responses_submitted,
				              responses_updated = daily_poll_metrics.responses_updated + EXCLUDED.responses_updated,
				              users_registered = daily_poll_metrics.users_registered + EXCLUDED.users_registered,
				              updated_at = now()
			`, d.Day, d.PollsCreated, d.PollsUpdated, d.PollsDeleted, d.ResponsesSubmitted, d.ResponsesUpdated, d.UsersRegistered); err != nil {
				return err
			}
		}
		if d.HasNotificationCounters() {
			if _, err := tx.Exec(ctx, `
				INSERT INTO daily_notification_metrics (day, channel, sent_count, failed_count)
				VALUES ($1::date, $2, $3, $4)
				ON CONFLICT (day, channel)
				DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
				              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
				              updated_at = now()
			`, d.Day, d.Channel, d.Sent, d.Failed); err != nil {
				return err
			}
		}
		return nil
	})
}

// Daily returns one entry per day in [from, to] that has any counter, oldest first.
func (r *Repository) Daily(ctx context.Context, from, to time.Time) ([]DayMetrics, error) {
	byDay := map[string]*DayMetrics{}
	var order []string
	get := func(day time.Time) *DayMetrics {
		key := day.Format("2006-01-02")
		m, ok := byDay[key]
		if !ok {
			m = &DayMetrics{Day: key, Notifications: map[string]ChannelCounts{}}
			byDay[key] = m
			order = append(order, key)
		}
		return m
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day, polls_created, polls_updated, polls_deleted, responses_submitted, responses_updated, users_registered
		FROM daily_poll_metrics
		WHERE day BETWEEN $1::date AND $2::date
		ORDER BY day
	`, from, to)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var day time.Time
		var p DayMetrics
		if err := rows.Scan(&day, &p.PollsCreated, &p.PollsUpdated, &p.PollsDeleted, &p.ResponsesSubmitted, &p.ResponsesUpdated, &p.UsersRegistered); err != nil {
			rows.Close()
			return nil, err
		}
		m := get(day)
		m.PollsCreated, m.PollsUpdated, m.PollsDeleted = p.PollsCreated, p.PollsUpdated, p.PollsDeleted
		m.ResponsesSubmitted, m.ResponsesUpdated = p.ResponsesSubmitted, p.ResponsesUpdated
		m.UsersRegistered = p.UsersRegistered
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT day, channel, sent_count, failed_count
		FROM daily_notification_metrics
		WHERE day BETWEEN $1::date AND $2::date
		ORDER BY day, channel
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var day time.Time
		var channel string
		var c ChannelCounts
		if err := rows.Scan(&day, &channel, &c.Sent, &c.Failed); err != nil {
			return nil, err
		}
		get(day).Notifications[channel] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Sort(order)
	out := make([]DayMetrics, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out, nil
}
