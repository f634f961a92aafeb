package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/whenmeet/libs/entitlements"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/libs/tzclock"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/cache"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/model"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/share"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/slots"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/storage"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/validate"
)

const (
	AdminTokenHeader   = "X-Admin-Token"
	EditTokenHeader    = "X-Edit-Token"
	PollPasswordHeader = "X-Poll-Password"

	shareCodeAttempts = 3
)

// Store is the persistence the handlers need; storage.PollRepository implements it.
type Store interface {
	CreatePoll(ctx context.Context, p *model.Poll, events ...outbox.Event) error
	UpdatePoll(ctx context.Context, p *model.Poll, events ...outbox.Event) error
	DeletePoll(ctx context.Context, id string, events ...outbox.Event) error
	PollByID(ctx context.Context, id string) (model.Poll, error)
	PollByShareCode(ctx context.Context, code string) (model.Poll, error)
	AddResponse(ctx context.Context, resp *model.Response, admit func(current int) ([]outbox.Event, error)) error
	UpdateResponse(ctx context.Context, resp *model.Response, events ...outbox.Event) error
	ResponseByID(ctx context.Context, pollID, id string) (model.Response, error)
	ListResponses(ctx context.Context, pollID string) ([]model.Response, error)
}

type TierResolver interface {
	Limits(ctx context.Context, userID string) entitlements.Limits
}

type PollHandler struct {
	store   Store
	tiers   TierResolver
	clock   *tzclock.IANA
	results cache.Results
	logger  *slog.Logger
	baseURL string
	now     func() time.Time
}

// NewPollHandler wires the poll API. baseURL prefixes share paths in events and calendar
// files; a nil results cache disables caching.
func NewPollHandler(store Store, tiers TierResolver, clock *tzclock.IANA, results cache.Results, logger *slog.Logger, baseURL string) *PollHandler {
	if results == nil {
		results = cache.Noop{}
	}
	return &PollHandler{
		store:   store,
		tiers:   tiers,
		clock:   clock,
		results: results,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts every poll route on mux.
func (h *PollHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/polls", h.Create)
	mux.HandleFunc("PUT /api/v1/polls/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/polls/{id}", h.Delete)
	mux.HandleFunc("GET /api/v1/polls/{code}", h.Get)
	mux.HandleFunc("POST /api/v1/polls/{code}/responses", h.Submit)
	mux.HandleFunc("PUT /api/v1/polls/{code}/responses/{id}", h.EditResponse)
	mux.HandleFunc("GET /api/v1/polls/{code}/results", h.Results)
	mux.HandleFunc("GET /api/v1/polls/{code}/export.csv", h.ExportCSV)
	mux.HandleFunc("GET /api/v1/polls/{code}/best.ics", h.BestICS)
}

type pollView struct {
	ID                string    `json:"id"`
	ShareCode         string    `json:"share_code"`
	SharePath         string    `json:"share_path"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Dates             []string  `json:"dates"`
	TimeRangeStart    string    `json:"time_range_start"`
	TimeRangeEnd      string    `json:"time_range_end"`
	SlotDuration      int       `json:"slot_duration"`
	TimeZone          string    `json:"time_zone"`
	Tier              string    `json:"tier"`
	PasswordProtected bool      `json:"password_protected"`
	BrandColor        string    `json:"brand_color,omitempty"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func newPollView(p model.Poll) pollView {
	return pollView{
		ID:                p.ID,
		ShareCode:         p.ShareCode,
		SharePath:         share.Path(p.ShareCode, p.Slug),
		Title:             p.Title,
		Description:       p.Description,
		Dates:             p.Dates,
		TimeRangeStart:    p.TimeRangeStart,
		TimeRangeEnd:      p.TimeRangeEnd,
		SlotDuration:      p.SlotDuration,
		TimeZone:          p.TimeZone,
		Tier:              p.Tier,
		PasswordProtected: p.PasswordProtected(),
		BrandColor:        p.BrandColor,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

// ownerView adds the fields only the organizer may read.
type ownerView struct {
	pollView
	NotifyEmail string   `json:"notify_email,omitempty"`
	WebhookURL  string   `json:"webhook_url,omitempty"`
	Slots       []string `json:"slots"`
	AdminToken  string   `json:"admin_token,omitempty"`
}

func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	var env validate.Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env.Normalize()

	ctx := r.Context()
	ownerID := strings.TrimSpace(r.Header.Get(httpx.UserIDHeader))
	limits := h.tiers.Limits(ctx, ownerID)
	if err := validate.CheckEnvelope(h.clock, env, limits); err != nil {
		h.writeError(w, err, "poll")
		return
	}
	ids, err := slots.Generate(h.clock, env.Dates, env.TimeRangeStart, env.TimeRangeEnd, env.SlotDuration, env.TimeZone)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}

	adminToken, err := share.NewToken()
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	p := model.Poll{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		AdminTokenHash: share.HashToken(adminToken),
		Tier:           limits.Tier,
	}
	if err := applyEnvelope(&p, env); err != nil {
		h.writeError(w, err, "poll")
		return
	}

	for attempt := 1; ; attempt++ {
		p.ShareCode, err = share.NewShareCode()
		if err != nil {
			h.writeError(w, err, "poll")
			return
		}
		evt, err := h.pollEvent(events.TopicPollCreated, p, ids)
		if err != nil {
			h.writeError(w, err, "poll")
			return
		}
		err = h.store.CreatePoll(ctx, &p, evt)
		if errors.Is(err, storage.ErrConflict) && attempt < shareCodeAttempts {
			h.logger.Warn("share code collision; retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			h.writeError(w, err, "poll")
			return
		}
		break
	}

	h.logger.Info("poll created", "poll_id", p.ID, "owner_id", p.OwnerID, "tier", p.Tier, "slots", len(ids))
	httpx.WriteJSON(w, http.StatusCreated, ownerView{
		pollView:    newPollView(p),
		NotifyEmail: p.NotifyEmail,
		WebhookURL:  p.WebhookURL,
		Slots:       ids,
		AdminToken:  adminToken,
	})
}

// Update replaces the envelope. Existing responses are kept even when their slots no
// longer exist; they simply stop counting.
func (h *PollHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.store.PollByID(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	if !h.isOwner(r, p) {
		http.Error(w, "only the poll owner can edit it", http.StatusForbidden)
		return
	}

	var env validate.Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env.Normalize()
	limits := h.tiers.Limits(ctx, p.OwnerID)
	if err := validate.CheckEnvelope(h.clock, env, limits); err != nil {
		h.writeError(w, err, "poll")
		return
	}
	ids, err := slots.Generate(h.clock, env.Dates, env.TimeRangeStart, env.TimeRangeEnd, env.SlotDuration, env.TimeZone)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}

	keepPassword := env.Password == "" && !env.ClearPassword && p.PasswordProtected() && limits.Features.PasswordProtection
	previousHash := p.PasswordHash
	if err := applyEnvelope(&p, env); err != nil {
		h.writeError(w, err, "poll")
		return
	}
	if keepPassword {
		p.PasswordHash = previousHash
	}
	p.Tier = limits.Tier

	next := p
	next.Version++
	evt, err := h.pollEvent(events.TopicPollUpdated, next, ids)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	if err := h.store.UpdatePoll(ctx, &p, evt); err != nil {
		h.writeError(w, err, "poll")
		return
	}

	h.logger.Info("poll updated", "poll_id", p.ID, "version", p.Version)
	httpx.WriteJSON(w, http.StatusOK, ownerView{
		pollView:    newPollView(p),
		NotifyEmail: p.NotifyEmail,
		WebhookURL:  p.WebhookURL,
		Slots:       ids,
	})
}

func (h *PollHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.store.PollByID(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	if !h.isOwner(r, p) {
		http.Error(w, "only the poll owner can delete it", http.StatusForbidden)
		return
	}
	evt, err := h.pollEvent(events.TopicPollDeleted, p, nil)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	if err := h.store.DeletePoll(ctx, p.ID, evt); err != nil {
		h.writeError(w, err, "poll")
		return
	}
	h.logger.Info("poll deleted", "poll_id", p.ID)
	w.WriteHeader(http.StatusNoContent)
}

type slotView struct {
	ID    string `json:"id"`
	Time  string `json:"time"`
	Label string `json:"label"`
}

type dayView struct {
	Date  string     `json:"date"`
	Slots []slotView `json:"slots"`
}

type pollPage struct {
	Poll        pollView  `json:"poll"`
	Slots       []string  `json:"slots"`
	DisplayZone string    `json:"display_zone"`
	DayOffset   int       `json:"day_offset"`
	Days        []dayView `json:"days"`
}

// Get is the public respondent view: the envelope plus the slot grid laid out in the
// viewer's zone (tz query parameter, defaulting to the poll's zone).
func (h *PollHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}
	displayZone, ok := h.displayZone(w, r, p)
	if !ok {
		return
	}
	ids, err := h.pollSlots(p)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	groups, err := slots.GroupByDate(h.clock, ids, displayZone)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}
	offset, err := h.dayOffset(ids, p.TimeZone, displayZone)
	if err != nil {
		h.writeError(w, err, "poll")
		return
	}

	days := make([]dayView, 0, len(groups))
	for _, g := range groups {
		day := dayView{Date: g.Date, Slots: make([]slotView, 0, len(g.Slots))}
		for _, id := range g.Slots {
			sv, err := h.slotView(id, displayZone)
			if err != nil {
				h.writeError(w, err, "poll")
				return
			}
			day.Slots = append(day.Slots, sv)
		}
		days = append(days, day)
	}

	httpx.WriteJSON(w, http.StatusOK, pollPage{
		Poll:        newPollView(p),
		Slots:       ids,
		DisplayZone: displayZone,
		DayOffset:   offset,
		Days:        days,
	})
}

func applyEnvelope(p *model.Poll, env validate.Envelope) error {
	p.Title = env.Title
	p.Slug = share.Slug(env.Title)
	p.Description = env.Description
	p.Dates = env.Dates
	p.TimeRangeStart = env.TimeRangeStart
	p.TimeRangeEnd = env.TimeRangeEnd
	p.SlotDuration = env.SlotDuration
	p.TimeZone = env.TimeZone
	p.BrandColor = strings.ToLower(env.BrandColor)
	p.NotifyEmail = env.NotifyEmail
	p.WebhookURL = env.WebhookURL
	p.PasswordHash = ""
	if env.Password != "" {
		hash, err := share.HashPassword(env.Password)
		if err != nil {
			return err
		}
		p.PasswordHash = hash
	}
	return nil
}

func (h *PollHandler) pollEvent(topic string, p model.Poll, ids []string) (outbox.Event, error) {
	evt := events.PollChanged{
		PollID:     p.ID,
		ShareCode:  p.ShareCode,
		OwnerID:    p.OwnerID,
		Title:      p.Title,
		Tier:       p.Tier,
		Version:    p.Version,
		OccurredAt: h.now(),
	}
	if len(ids) > 0 {
		evt.PollURL = h.baseURL + share.Path(p.ShareCode, p.Slug)
		evt.TimeZone = p.TimeZone
		evt.NotifyEmail = p.NotifyEmail
		// Slot ids sort chronologically.
		evt.FirstSlot = slices.Min(ids)
	}
	return outbox.NewEvent(events.AggregatePoll, p.ID, topic, evt)
}

// isOwner accepts the authenticated owner or anyone holding the admin token, which is
// the only credential of polls created anonymously.
func (h *PollHandler) isOwner(r *http.Request, p model.Poll) bool {
	userID := strings.TrimSpace(r.Header.Get(httpx.UserIDHeader))
	if p.OwnerID != "" && userID == p.OwnerID {
		return true
	}
	return share.TokenMatches(p.AdminTokenHash, strings.TrimSpace(r.Header.Get(AdminTokenHeader)))
}

// loadPublicPoll resolves the share code and enforces the poll password. Owners skip
// the password check.
func (h *PollHandler) loadPublicPoll(w http.ResponseWriter, r *http.Request) (model.Poll, bool) {
	p, err := h.store.PollByShareCode(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeError(w, err, "poll")
		return model.Poll{}, false
	}
	if p.PasswordProtected() && !h.isOwner(r, p) {
		password := r.Header.Get(PollPasswordHeader)
		if password == "" {
			http.Error(w, "this poll is password protected", http.StatusForbidden)
			return model.Poll{}, false
		}
		if !share.CheckPassword(p.PasswordHash, password) {
			http.Error(w, "incorrect poll password", http.StatusForbidden)
			return model.Poll{}, false
		}
	}
	return p, true
}

func (h *PollHandler) displayZone(w http.ResponseWriter, r *http.Request, p model.Poll) (string, bool) {
	zone := strings.TrimSpace(r.URL.Query().Get("tz"))
	if zone == "" {
		return p.TimeZone, true
	}
	if _, err := h.clock.Location(zone); err != nil {
		http.Error(w, "tz: "+err.Error(), http.StatusBadRequest)
		return "", false
	}
	return zone, true
}

func (h *PollHandler) pollSlots(p model.Poll) ([]string, error) {
	return slots.Generate(h.clock, p.Dates, p.TimeRangeStart, p.TimeRangeEnd, p.SlotDuration, p.TimeZone)
}

// dayOffset reports the shift of the first slot; a poll without slots has none.
func (h *PollHandler) dayOffset(ids []string, eventZone, displayZone string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return slots.DayOffset(h.clock, ids[0], eventZone, displayZone)
}

func (h *PollHandler) slotView(id, zone string) (slotView, error) {
	t, err := tzclock.ParseSlotID(id)
	if err != nil {
		return slotView{}, err
	}
	short, err := h.clock.InstantToLocalTime(t, zone, tzclock.FormatShort)
	if err != nil {
		return slotView{}, err
	}
	long, err := h.clock.InstantToLocalTime(t, zone, tzclock.FormatLong)
	if err != nil {
		return slotView{}, err
	}
	return slotView{ID: id, Time: short, Label: long}, nil
}

func (h *PollHandler) writeError(w http.ResponseWriter, err error, what string) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		code := http.StatusBadRequest
		if verr.Upgrade {
			code = http.StatusPaymentRequired
		}
		http.Error(w, verr.Error(), code)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, what+" not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrConflict):
		http.Error(w, what+" already exists", http.StatusConflict)
	default:
		h.logger.Error("request failed", "what", what, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
