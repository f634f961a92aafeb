package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBytes = 1 << 20

// StripeWebhook has no JWT; the signature is the authentication. The gateway exposes it publicly.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		h.logger.Warn("stripe webhook rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	outcome, err := interpretStripeEvent(evt)
	if err != nil {
		h.logger.Error("stripe webhook payload invalid", "provider_event_id", evt.ID, "err", err)
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	evtType := string(evt.Type)
	occurredAt := time.Unix(evt.Created, 0).UTC()
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"user_id", outcome.change.UserID,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	ctx := r.Context()
	duplicate := false
	err = h.repo.InTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
			Provider:        "stripe",
			ProviderEventID: evt.ID,
			EventType:       evtType,
			Payload:         body,
		}); err != nil {
			if errors.Is(err, storage.ErrDuplicateProviderEvent) {
				duplicate = true
				return nil
			}
			return err
		}
		if err := h.recordAudit(ctx, tx, r, "billing.provider.stripe.webhook", "provider", outcome.change.UserID, map[string]any{
			"provider":          "stripe",
			"provider_event_id": evt.ID,
			"event_type":        evtType,
			"occurred_at":       occurredAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}

		switch outcome.action {
		case actionActivate:
			if outcome.sessionID != "" {
				if err := h.repo.MarkCheckoutSessionCompleted(ctx, tx, outcome.sessionID, occurredAt,
					outcome.change.StripeCustomerID, outcome.change.StripeSubscriptionID); err != nil {
					return err
				}
			}
			return h.subSvc.ApplyActivated(ctx, tx, outcome.change)
		case actionCancel:
			return h.subSvc.ApplyCanceled(ctx, tx, outcome.change)
		case actionSessionExpired:
			return h.repo.MarkCheckoutSessionExpired(ctx, tx, outcome.sessionID, occurredAt)
		default:
			h.logger.Info("stripe event ignored", "provider_event_id", evt.ID, "event_type", evtType, "reason", outcome.reason)
			return nil
		}
	})
	if err != nil {
		h.logger.Error("stripe webhook apply failed", "provider_event_id", evt.ID, "err", err)
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}
	if duplicate {
		h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
