package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/whenmeet/libs/events"
	"github.com/md-rashed-zaman/whenmeet/libs/httpx"
	"github.com/md-rashed-zaman/whenmeet/libs/outbox"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/model"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/share"
	"github.com/md-rashed-zaman/whenmeet/services/poll-service/internal/validate"
)

type responseView struct {
	ID            string   `json:"id"`
	PollID        string   `json:"poll_id"`
	Name          string   `json:"name"`
	Email         string   `json:"email,omitempty"`
	SelectedSlots []string `json:"selected_slots"`
	EditToken     string   `json:"edit_token,omitempty"`
}

// Submit records a respondent's availability. Selections are canonicalized but not
// matched against the current slots, so a grid loaded before an envelope edit still
// submits; stale identifiers just never count.
func (h *PollHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}

	var sub validate.Submission
	if err := httpx.DecodeJSON(r, &sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.CheckSubmission(&sub); err != nil {
		h.writeError(w, err, "response")
		return
	}

	token, err := share.NewToken()
	if err != nil {
		h.writeError(w, err, "response")
		return
	}
	resp := model.Response{
		ID:              uuid.NewString(),
		PollID:          p.ID,
		RespondentName:  sub.Name,
		RespondentEmail: sub.Email,
		SelectedSlots:   sub.SelectedSlots,
		EditTokenHash:   share.HashToken(token),
	}

	ctx := r.Context()
	limits := h.tiers.Limits(ctx, p.OwnerID)
	admit := func(current int) ([]outbox.Event, error) {
		if err := validate.Participants(limits, current); err != nil {
			return nil, err
		}
		payload := h.responsePayload(p, resp)
		payload.Participants = current + 1
		evt, err := outbox.NewEvent(events.AggregateResponse, resp.ID, events.TopicResponseSubmitted, payload)
		if err != nil {
			return nil, err
		}
		return []outbox.Event{evt}, nil
	}
	if err := h.store.AddResponse(ctx, &resp, admit); err != nil {
		h.writeError(w, err, "response")
		return
	}

	h.logger.Info("response submitted", "poll_id", p.ID, "response_id", resp.ID, "selected", len(resp.SelectedSlots))
	httpx.WriteJSON(w, http.StatusCreated, responseView{
		ID:            resp.ID,
		PollID:        p.ID,
		Name:          resp.RespondentName,
		Email:         resp.RespondentEmail,
		SelectedSlots: resp.SelectedSlots,
		EditToken:     token,
	})
}

// EditResponse replaces a response; the edit token issued at submission is the only credential.
func (h *PollHandler) EditResponse(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPublicPoll(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	resp, err := h.store.ResponseByID(ctx, p.ID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err, "response")
		return
	}
	if !share.TokenMatches(resp.EditTokenHash, strings.TrimSpace(r.Header.Get(EditTokenHeader))) {
		http.Error(w, "invalid edit token", http.StatusForbidden)
		return
	}

	var sub validate.Submission
	if err := httpx.DecodeJSON(r, &sub); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validate.CheckSubmission(&sub); err != nil {
		h.writeError(w, err, "response")
		return
	}
	resp.RespondentName = sub.Name
	resp.RespondentEmail = sub.Email
	resp.SelectedSlots = sub.SelectedSlots

	evt, err := outbox.NewEvent(events.AggregateResponse, resp.ID, events.TopicResponseUpdated, h.responsePayload(p, resp))
	if err != nil {
		h.writeError(w, err, "response")
		return
	}
	if err := h.store.UpdateResponse(ctx, &resp, evt); err != nil {
		h.writeError(w, err, "response")
		return
	}

	h.logger.Info("response updated", "poll_id", p.ID, "response_id", resp.ID)
	httpx.WriteJSON(w, http.StatusOK, responseView{
		ID:            resp.ID,
		PollID:        p.ID,
		Name:          resp.RespondentName,
		Email:         resp.RespondentEmail,
		SelectedSlots: resp.SelectedSlots,
	})
}

func (h *PollHandler) responsePayload(p model.Poll, resp model.Response) events.ResponseSubmitted {
	return events.ResponseSubmitted{
		PollID:          p.ID,
		ShareCode:       p.ShareCode,
		PollTitle:       p.Title,
		PollURL:         h.baseURL + share.Path(p.ShareCode, p.Slug),
		TimeZone:        p.TimeZone,
		NotifyEmail:     p.NotifyEmail,
		WebhookURL:      p.WebhookURL,
		ResponseID:      resp.ID,
		RespondentName:  resp.RespondentName,
		RespondentEmail: resp.RespondentEmail,
		SelectedSlots:   resp.SelectedSlots,
		OccurredAt:      h.now(),
	}
}
