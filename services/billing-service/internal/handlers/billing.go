package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/billing-service/internal/subscriptions"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	stripesubscription "github.com/stripe/stripe-go/v79/subscription"
)

const roleAdmin = "admin"

type Handler struct {
	repo                   *storage.Repository
	subSvc                 *subscriptions.Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	stripeSecretKey        string
	stripePricePremium     string
	checkoutSuccessURL     string
	checkoutCancelURL      string
}

type Config struct {
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	StripeSecretKey        string
	StripePricePremium     string
	CheckoutSuccessURL     string
	CheckoutCancelURL      string
}

func New(repo *storage.Repository, subSvc *subscriptions.Service, logger *slog.Logger, cfg Config) *Handler {
	if cfg.StripeWebhookTolerance <= 0 {
		cfg.StripeWebhookTolerance = 300 * time.Second
	}
	return &Handler{
		repo:                   repo,
		subSvc:                 subSvc,
		logger:                 logger,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: cfg.StripeWebhookTolerance,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripePricePremium:     strings.TrimSpace(cfg.StripePricePremium),
		checkoutSuccessURL:     strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:      strings.TrimSpace(cfg.CheckoutCancelURL),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/billing/checkout", h.Checkout)
	mux.HandleFunc("GET /api/v1/billing/checkout/session", h.CheckoutSessionStatus)
	mux.HandleFunc("POST /api/v1/billing/checkout/session/ack", h.AckCheckoutReturn)
	mux.HandleFunc("GET /api/v1/billing/subscription", h.GetSubscription)
	mux.HandleFunc("POST /api/v1/billing/subscription/cancel", h.CancelSubscription)
	mux.HandleFunc("POST /api/v1/billing/webhooks/local", h.LocalWebhook)
	mux.HandleFunc("POST /api/v1/billing/webhooks/stripe", h.StripeWebhook)
}

type localWebhookRequest struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"` // subscription.activated | subscription.canceled
	UserID     string `json:"user_id"`
	Tier       string `json:"tier,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// LocalWebhook lets development setups change plans without Stripe. Callers may only
// touch their own subscription unless they are admins.
func (h *Handler) LocalWebhook(w http.ResponseWriter, r *http.Request) {
	var req localWebhookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.Type = strings.TrimSpace(req.Type)
	req.UserID = strings.TrimSpace(req.UserID)
	req.Tier = strings.TrimSpace(strings.ToLower(req.Tier))
	if req.EventID == "" || req.Type == "" || req.UserID == "" || req.OccurredAt == "" {
		http.Error(w, "event_id, type, user_id and occurred_at are required", http.StatusBadRequest)
		return
	}
	occurredAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.OccurredAt))
	if err != nil {
		http.Error(w, "invalid occurred_at", http.StatusBadRequest)
		return
	}
	if !h.canActFor(r, req.UserID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	change := subscriptions.Change{UserID: req.UserID, Tier: req.Tier, OccurredAt: occurredAt, Provider: "local"}
	switch req.Type {
	case "subscription.activated":
		if req.Tier != entitlements.TierPremium {
			http.Error(w, "tier must be premium for subscription.activated", http.StatusBadRequest)
			return
		}
	case "subscription.canceled":
	default:
		http.Error(w, "unsupported type", http.StatusBadRequest)
		return
	}

	h.logger.Info("billing provider event received",
		"provider", "local",
		"provider_event_id", req.EventID,
		"event_type", req.Type,
		"user_id", req.UserID,
		"tier", req.Tier,
	)

	ctx := r.Context()
	payload, _ := json.Marshal(req)
	duplicate := false
	err = h.repo.InTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
			Provider:        "local",
			ProviderEventID: req.EventID,
			EventType:       req.Type,
			Payload:         payload,
		}); err != nil {
			if errors.Is(err, storage.ErrDuplicateProviderEvent) {
				duplicate = true
				return nil
			}
			return err
		}
		if err := h.recordAudit(ctx, tx, r, "billing.provider.local.webhook", "provider", req.UserID, map[string]any{
			"provider_event_id": req.EventID,
			"event_type":        req.Type,
			"tier":              req.Tier,
		}); err != nil {
			return err
		}
		if req.Type == "subscription.activated" {
			return h.subSvc.ApplyActivated(ctx, tx, change)
		}
		return h.subSvc.ApplyCanceled(ctx, tx, change)
	})
	if err != nil {
		h.logger.Error("local webhook apply failed", "provider_event_id", req.EventID, "err", err)
		http.Error(w, "failed to apply event", http.StatusInternalServerError)
		return
	}
	if duplicate {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type subscriptionView struct {
	UserID       string              `json:"user_id"`
	Tier         string              `json:"tier"`
	Status       string              `json:"status"`
	PeriodEnd    *time.Time          `json:"current_period_end,omitempty"`
	UpdatedAt    *time.Time          `json:"updated_at,omitempty"`
	Entitlements entitlements.Limits `json:"entitlements"`
}

// GetSubscription reports the caller's plan; admins may pass ?user_id=.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if q := strings.TrimSpace(r.URL.Query().Get("user_id")); q != "" && q != userID {
		if r.Header.Get(httpx.RoleHeader) != roleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		userID = q
	}
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteJSON(w, http.StatusOK, subscriptionView{
			UserID:       userID,
			Tier:         entitlements.TierFree,
			Status:       "none",
			Entitlements: entitlements.LimitsForTier(entitlements.TierFree),
		})
		return
	}
	if err != nil {
		h.logger.Error("subscription lookup failed", "user_id", userID, "err", err)
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}
	tier := subscriptions.EffectiveTier(sub, true)
	updated := sub.UpdatedAt.UTC()
	httpx.WriteJSON(w, http.StatusOK, subscriptionView{
		UserID:       userID,
		Tier:         tier,
		Status:       sub.Status,
		PeriodEnd:    sub.CurrentPeriodEnd,
		UpdatedAt:    &updated,
		Entitlements: entitlements.LimitsForTier(tier),
	})
}

type cancelSubscriptionRequest struct {
	UserID string `json:"user_id,omitempty"` // admin only
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe billing not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}
	var req cancelSubscriptionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	userID := callerID(r)
	if target := strings.TrimSpace(req.UserID); target != "" && target != userID {
		if r.Header.Get(httpx.RoleHeader) != roleAdmin {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		userID = target
	}
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	sub, err := h.repo.GetSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load subscription", http.StatusInternalServerError)
		return
	}
	stripeSubID := strings.TrimSpace(sub.StripeSubscriptionID)
	if stripeSubID == "" {
		http.Error(w, "no stripe subscription id on record", http.StatusConflict)
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey == "" {
		// Deterministic fallback so retries without a key cannot double-cancel.
		idemKey = "cancel:" + userID + ":" + stripeSubID
	}

	stripe.Key = h.stripeSecretKey
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	params := &stripe.SubscriptionCancelParams{}
	params.Context = callCtx
	params.IdempotencyKey = stripe.String(idemKey)
	stripeSub, err := stripesubscription.Cancel(stripeSubID, params)
	if err != nil {
		h.logger.Error("stripe subscription cancel failed", "err", err, "stripe_subscription_id", stripeSubID)
		http.Error(w, "failed to cancel subscription", http.StatusBadGateway)
		return
	}

	change := subscriptions.FromStripe(stripeSub, userID, sub.Tier, time.Now().UTC())
	payload, _ := json.Marshal(map[string]any{
		"user_id":                userID,
		"stripe_subscription_id": stripeSubID,
		"idempotency_key":        idemKey,
	})
	duplicate := false
	err = h.repo.InTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
			Provider:        "internal",
			ProviderEventID: idemKey,
			EventType:       "subscription.cancel",
			Payload:         payload,
		}); err != nil {
			if errors.Is(err, storage.ErrDuplicateProviderEvent) {
				duplicate = true
				return nil
			}
			return err
		}
		if err := h.recordAudit(ctx, tx, r, "billing.subscription.cancel.requested", "", userID, map[string]any{
			"stripe_subscription_id": stripeSubID,
			"idempotency_key":        idemKey,
		}); err != nil {
			return err
		}
		return h.subSvc.ApplyCanceled(ctx, tx, change)
	})
	if err != nil {
		h.logger.Error("subscription cancel apply failed", "user_id", userID, "err", err)
		http.Error(w, "failed to apply cancellation", http.StatusInternalServerError)
		return
	}
	if duplicate {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type checkoutRequest struct {
	Tier       string `json:"tier"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// Checkout starts a Stripe Checkout session for the premium plan.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.stripeSecretKey == "" {
		http.Error(w, "stripe checkout not configured (STRIPE_SECRET_KEY missing)", http.StatusNotImplemented)
		return
	}
	userID := callerID(r)
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req checkoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	tier := strings.TrimSpace(strings.ToLower(req.Tier))
	if tier != entitlements.TierPremium {
		http.Error(w, "unsupported tier", http.StatusBadRequest)
		return
	}
	if h.stripePricePremium == "" {
		http.Error(w, "stripe price id not configured for tier", http.StatusNotImplemented)
		return
	}
	successURL := firstNonEmpty(req.SuccessURL, h.checkoutSuccessURL)
	cancelURL := firstNonEmpty(req.CancelURL, h.checkoutCancelURL)
	if successURL == "" || cancelURL == "" {
		http.Error(w, "success_url and cancel_url are required (or configure default URLs)", http.StatusBadRequest)
		return
	}

	// The return pages are public; the state token stops session-id guessing.
	returnToken := newReturnToken()
	successURL = withQueryParam(successURL, "state", returnToken)
	cancelURL = withQueryParam(cancelURL, "state", returnToken)

	stripe.Key = h.stripeSecretKey
	md := map[string]string{metadataUserID: userID, metadataTier: tier}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(h.stripePricePremium), Quantity: stripe.Int64(1)},
		},
		Metadata:         md,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: md},
	}
	params.Context = r.Context()
	if idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key")); idemKey != "" {
		params.IdempotencyKey = stripe.String(idemKey)
	}
	sess, err := checkoutsession.New(params)
	if err != nil {
		h.logger.Error("stripe checkout session create failed", "err", err)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}

	ctx := r.Context()
	err = h.repo.InTx(ctx, func(tx pgx.Tx) error {
		if err := h.repo.UpsertCheckoutSession(ctx, tx, storage.CheckoutSession{
			StripeSessionID: sess.ID,
			UserID:          userID,
			Tier:            tier,
			Status:          "created",
			URL:             sess.URL,
			ReturnToken:     returnToken,
		}); err != nil {
			return err
		}
		return h.recordAudit(ctx, tx, r, "billing.checkout.created", "", userID, map[string]any{
			"tier":              tier,
			"stripe_session_id": sess.ID,
		})
	})
	if err != nil {
		h.logger.Error("checkout session persist failed", "stripe_session_id", sess.ID, "err", err)
		http.Error(w, "failed to persist checkout session", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "url": sess.URL})
}

type sessionView struct {
	SessionID   string     `json:"session_id"`
	Tier        string     `json:"tier"`
	Status      string     `json:"status"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

// CheckoutSessionStatus is public because Stripe redirects the customer without a token.
// It returns non-sensitive state only.
func (h *Handler) CheckoutSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	sess, err := h.repo.GetCheckoutSession(r.Context(), sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionView{
		SessionID:   sess.StripeSessionID,
		Tier:        sess.Tier,
		Status:      sess.Status,
		UpdatedAt:   sess.UpdatedAt.UTC(),
		CompletedAt: sess.CompletedAt,
		CanceledAt:  sess.CanceledAt,
		ExpiredAt:   sess.ExpiredAt,
	})
}

type checkoutAckRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Result    string `json:"result"` // success | cancel
}

// AckCheckoutReturn is public but bound to the per-session return token.
func (h *Handler) AckCheckoutReturn(w http.ResponseWriter, r *http.Request) {
	var req checkoutAckRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.State = strings.TrimSpace(req.State)
	req.Result = strings.TrimSpace(strings.ToLower(req.Result))
	if req.SessionID == "" || req.State == "" {
		http.Error(w, "session_id and state are required", http.StatusBadRequest)
		return
	}
	if req.Result != "success" && req.Result != "cancel" {
		http.Error(w, "invalid result", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	err := h.repo.InTx(ctx, func(tx pgx.Tx) error {
		return h.repo.AckCheckoutReturn(ctx, tx, req.SessionID, req.State, req.Result, time.Now().UTC())
	})
	if err != nil {
		http.Error(w, "failed to record return", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(httpx.UserIDHeader))
}

func (h *Handler) canActFor(r *http.Request, userID string) bool {
	if r.Header.Get(httpx.RoleHeader) == roleAdmin {
		return true
	}
	return callerID(r) == userID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func newReturnToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

func withQueryParam(rawURL string, key string, value string) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + key + "=" + url.QueryEscape(value)
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, r *http.Request, eventType string, actorType string, userID string, metadata map[string]any) error {
	if actorType == "" {
		actorType = strings.TrimSpace(r.Header.Get(httpx.RoleHeader))
	}
	if actorType == "" {
		actorType = "system"
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := httpx.RequestIDFromContext(r.Context()); reqID != "" {
		metadata["request_id"] = reqID
	}
	raw, _ := json.Marshal(metadata)
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   callerID(r),
		UserID:    userID,
		Metadata:  raw,
	})
}
