package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/promote/application"
	"github.com/felixgeelhaar/promote/domain/promotion"
)

// CreateRequest is the body of POST /promotions. Exactly one of Snapshot
// and ProjectID is set; ProjectID fetches the snapshot from the
// data-capture system.
type CreateRequest struct {
	Title       string                     `json:"title,omitempty"`
	TargetSpace promotion.TargetSpace      `json:"target_space"`
	ProjectID   string                     `json:"project_id,omitempty"`
	Snapshot    *promotion.ProjectSnapshot `json:"project_snapshot,omitempty"`
}

// ReviewRequest is the body of POST /promotions/{id}/review.
type ReviewRequest struct {
	Action  promotion.Action `json:"action"`
	Comment string           `json:"comment,omitempty"`
	// Level pins the review to a level; empty reviews the current one.
	Level promotion.Level `json:"level,omitempty"`
}

// HistoryResponse is the body of GET /promotions/{id}/history.
type HistoryResponse struct {
	ID      string                   `json:"id"`
	History []promotion.ReviewRecord `json:"history"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	var (
		pr  *promotion.PullRequest
		err error
	)
	switch {
	case req.Snapshot != nil && req.ProjectID != "":
		err = fmt.Errorf("%w: set either project_snapshot or project_id", promotion.ErrInvalidRequest)
	case req.Snapshot != nil:
		pr, err = h.svc.Create(r.Context(), req.Snapshot, actorOf(r), req.TargetSpace, req.Title)
	case req.ProjectID != "":
		pr, err = h.svc.CreateFromProject(r.Context(), req.ProjectID, actorOf(r), req.TargetSpace, req.Title)
	default:
		err = fmt.Errorf("%w: project_snapshot or project_id is required", promotion.ErrInvalidRequest)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/promotions/"+pr.ID)
	h.respondJSON(w, http.StatusCreated, pr)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pr)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, err := h.svc.History(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if history == nil {
		history = []promotion.ReviewRecord{}
	}
	h.respondJSON(w, http.StatusOK, HistoryResponse{ID: id, History: history})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Submit(r.Context(), chi.URLParam(r, "id"), actorOf(r), tokenOf(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pr)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Withdraw(r.Context(), chi.URLParam(r, "id"), actorOf(r), tokenOf(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pr)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := decode(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var (
		pr  *promotion.PullRequest
		err error
	)
	if req.Level == promotion.LevelNone {
		pr, err = h.svc.Review(r.Context(), id, actorOf(r), req.Action, req.Comment, tokenOf(r))
	} else {
		pr, err = h.svc.ReviewAtLevel(r.Context(), id, actorOf(r), req.Level, req.Action, req.Comment, tokenOf(r))
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, pr)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actorOf(r), tokenOf(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, err := h.svc.List(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, page)
}

// handleSummary counts requests by status for ?applicant=, defaulting to
// the caller.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	applicant := r.URL.Query().Get("applicant")
	if applicant == "" {
		applicant = actorOf(r)
	}
	counts, err := h.svc.Summary(r.Context(), applicant)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, counts)
}

// ParseQuery converts list query parameters into an application.Query.
// Statuses may repeat or be comma separated; times are RFC 3339.
func ParseQuery(values url.Values) (application.Query, error) {
	q := application.Query{
		Applicant:    values.Get("applicant"),
		ReviewableBy: values.Get("reviewable_by"),
		TargetSpace:  promotion.TargetSpace(values.Get("target_space")),
		TimeField:    promotion.TimeField(values.Get("time_field")),
		OrderBy:      promotion.OrderBy(values.Get("order_by")),
	}

	for _, raw := range values["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Statuses = append(q.Statuses, promotion.Status(s))
			}
		}
	}

	var err error
	if q.From, err = parseTime(values, "from"); err != nil {
		return application.Query{}, err
	}
	if q.To, err = parseTime(values, "to"); err != nil {
		return application.Query{}, err
	}
	if q.Offset, err = parseInt(values, "offset"); err != nil {
		return application.Query{}, err
	}
	if q.Limit, err = parseInt(values, "limit"); err != nil {
		return application.Query{}, err
	}
	if raw := values.Get("desc"); raw != "" {
		if q.Descending, err = strconv.ParseBool(raw); err != nil {
			return application.Query{}, fmt.Errorf("%w: desc: %q is not a boolean", promotion.ErrInvalidRequest, raw)
		}
	}
	return q, nil
}

func parseTime(values url.Values, key string) (time.Time, error) {
	raw := values.Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %q is not an RFC 3339 time", promotion.ErrInvalidRequest, key, raw)
	}
	return t, nil
}

func parseInt(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s: %q is not a non-negative integer", promotion.ErrInvalidRequest, key, raw)
	}
	return n, nil
}
