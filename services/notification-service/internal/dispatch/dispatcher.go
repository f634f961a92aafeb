// Package dispatch fans poll activity out to the organizer's channels.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/render"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/notification-service/internal/webhook"
	"github.com/segmentio/kafka-go"
)

const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
	ChannelDigest  = "digest"
)

type Recorder interface {
	Record(ctx context.Context, n storage.Notification) error
}

type Config struct {
	// FailSuffix makes email deliveries to matching recipients fail, for local testing.
	FailSuffix string
}

type Dispatcher struct {
	email    email.Sender
	webhook  webhook.Sender
	renderer *render.Renderer
	store    Recorder
	logger   *slog.Logger
	cfg      Config
}

func New(emailSender email.Sender, webhookSender webhook.Sender, renderer *render.Renderer, store Recorder, logger *slog.Logger, cfg Config) *Dispatcher {
	return &Dispatcher{
		email:    emailSender,
		webhook:  webhookSender,
		renderer: renderer,
		store:    store,
		logger:   logger,
		cfg:      cfg,
	}
}

// Handle delivers once per channel. Delivery failures are recorded and never retried;
// only a failure to record is returned.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	if msg.Topic == events.TopicDigestDue {
		return d.handleDigest(ctx, msg)
	}
	var evt events.ResponseSubmitted
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		d.logger.Error("invalid response payload", "err", err)
		return nil
	}
	if evt.PollID == "" || evt.ResponseID == "" {
		d.logger.Error("response event missing poll_id or response_id")
		return nil
	}

	var errs []error
	if to := strings.TrimSpace(evt.NotifyEmail); to != "" {
		errs = append(errs, d.record(ctx, evt, ChannelEmail, to, d.sendEmail(ctx, evt, to), d.email.ProviderID(), nil))
	}
	if url := strings.TrimSpace(evt.WebhookURL); url != "" {
		payload := d.renderer.Webhook(evt)
		errs = append(errs, d.record(ctx, evt, ChannelWebhook, url, d.webhook.Send(ctx, url, payload), d.webhook.ProviderID(), payload))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) handleDigest(ctx context.Context, msg kafka.Message) error {
	var evt events.DigestDue
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		d.logger.Error("invalid digest payload", "err", err)
		return nil
	}
	to := strings.TrimSpace(evt.NotifyEmail)
	if evt.PollID == "" || to == "" {
		d.logger.Error("digest event missing poll_id or notify_email")
		return nil
	}

	var sendErr error
	if d.cfg.FailSuffix != "" && strings.HasSuffix(to, d.cfg.FailSuffix) {
		sendErr = errors.New("simulated failure")
	} else {
		subject, body := d.renderer.Digest(evt)
		sendErr = d.email.Send(ctx, to, subject, body)
	}
	n := storage.Notification{
		PollID:     evt.PollID,
		Channel:    ChannelDigest,
		Recipient:  to,
		ProviderID: d.email.ProviderID(),
		Status:     storage.StatusSent,
		Payload:    map[string]any{"first_slot": evt.FirstSlot, "remind_at": evt.RemindAt},
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
		d.logger.Warn("digest delivery failed", "poll_id", evt.PollID, "err", sendErr)
	}
	if err := d.store.Record(ctx, n); err != nil {
		d.logger.Error("failed to persist notification", "channel", ChannelDigest, "poll_id", evt.PollID, "err", err)
		return err
	}
	d.logger.Info("notification processed", "channel", ChannelDigest, "poll_id", evt.PollID, "status", n.Status)
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, evt events.ResponseSubmitted, to string) error {
	if d.cfg.FailSuffix != "" && strings.HasSuffix(to, d.cfg.FailSuffix) {
		return errors.New("simulated failure")
	}
	subject, body := d.renderer.Email(evt)
	return d.email.Send(ctx, to, subject, body)
}

func (d *Dispatcher) record(ctx context.Context, evt events.ResponseSubmitted, channel, recipient string, sendErr error, providerID string, payload any) error {
	n := storage.Notification{
		PollID:     evt.PollID,
		ResponseID: evt.ResponseID,
		Channel:    channel,
		Recipient:  recipient,
		ProviderID: providerID,
		Status:     storage.StatusSent,
		Payload:    payload,
	}
	if n.Payload == nil {
		n.Payload = map[string]any{"respondent_name": evt.RespondentName, "selected_slots": len(evt.SelectedSlots)}
	}
	if sendErr != nil {
		n.Status = storage.StatusFailed
		n.Error = sendErr.Error()
		d.logger.Warn("notification delivery failed", "channel", channel, "poll_id", evt.PollID, "err", sendErr)
	}
	if err := d.store.Record(ctx, n); err != nil {
		d.logger.Error("failed to persist notification", "channel", channel, "poll_id", evt.PollID, "err", err)
		return err
	}
	d.logger.Info("notification processed", "channel", channel, "poll_id", evt.PollID, "response_id", evt.ResponseID, "status", n.Status)
	return nil
}
