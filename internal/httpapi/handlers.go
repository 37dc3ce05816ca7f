package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clubsched/sessiond/internal/model"
	"github.com/clubsched/sessiond/internal/service"
)

const dateLayout = "2006-01-02"

// localDate is a calendar day ("YYYY-MM-DD") in request bodies. The engine
// interprets it in the template's timezone.
type localDate struct {
	time.Time
}

func (d *localDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

func (d *localDate) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

type templateRequest struct {
	ClubID      int64                      `json:"club_id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Recurrence  model.RecurrenceKind       `json:"recurrence"`
	StartTime   string                     `json:"start_time"`
	EndTime     string                     `json:"end_time"`
	Date        *localDate                 `json:"date"`
	StartDate   *localDate                 `json:"start_date"`
	EndDate     *localDate                 `json:"end_date"`
	DayOfWeek   *int                       `json:"day_of_week"`
	DayOfMonth  *int                       `json:"day_of_month"`
	Location    model.Location             `json:"location"`
	Timeslots   []model.TimeslotDefinition `json:"timeslots"`
	FeeCents    int                        `json:"fee_cents"`
	FeeCurrency string                     `json:"fee_currency"`
	Visibility  model.Visibility           `json:"visibility"`
}

type generateRequest struct {
	WindowStart localDate `json:"window_start"`
	WindowEnd   localDate `json:"window_end"`
}

type participantRequest struct {
	UserID int64 `json:"user_id"`
}

type rostersRequest struct {
	Rosters map[uuid.UUID][]int64 `json:"rosters"`
}

// Handler serves the scheduling engine's operations.
type Handler struct {
	sessions      *service.SessionService
	participation *service.ParticipationService
	rosters       *service.RosterService
	responder
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	tmpl, err := h.sessions.CreateTemplate(r.Context(), actorID(r), service.CreateTemplateInput{
		ClubID:      req.ClubID,
		Name:        req.Name,
		Description: req.Description,
		Recurrence:  req.Recurrence,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Date:        req.Date.ptr(),
		StartDate:   req.StartDate.ptr(),
		EndDate:     req.EndDate.ptr(),
		DayOfWeek:   req.DayOfWeek,
		DayOfMonth:  req.DayOfMonth,
		Location:    req.Location,
		Timeslots:   req.Timeslots,
		FeeCents:    req.FeeCents,
		FeeCurrency: req.FeeCurrency,
		Visibility:  req.Visibility,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, tmpl)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	tmpl, err := h.sessions.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tmpl)
}

func (h *Handler) listClubTemplates(w http.ResponseWriter, r *http.Request) {
	clubID, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	templates, err := h.sessions.ListTemplates(r.Context(), clubID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, templates)
}

func (h *Handler) generateInstances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ids, err := h.sessions.GenerateInstances(r.Context(), id, req.WindowStart.Time, req.WindowEnd.Time)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string][]int64{"instance_ids": ids})
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	inst, err := h.sessions.GetInstance(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, inst)
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	from, to, err := windowParams(r)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	instances, err := h.sessions.ListInstances(r.Context(), id, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, instances)
}

func (h *Handler) cancelInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.sessions.CancelInstance(r.Context(), actorID(r), id); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	instanceID, timeslotID, userID, err := h.participantParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	participant, err := h.participation.Join(r.Context(), instanceID, timeslotID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, participant)
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	instanceID, timeslotID, userID, err := h.participantParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.participation.Leave(r.Context(), instanceID, timeslotID, userID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) updateRosters(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req rostersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.rosters.UpdateRosters(r.Context(), actorID(r), id, req.Rosters); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) participantParams(r *http.Request) (int64, uuid.UUID, int64, error) {
	instanceID, err := pathID(r, "id")
	if err != nil {
		return 0, uuid.Nil, 0, err
	}

	timeslotID, err := uuid.Parse(r.PathValue("timeslotID"))
	if err != nil {
		return 0, uuid.Nil, 0, service.ErrTimeslotNotFound
	}

	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		return 0, uuid.Nil, 0, fmt.Errorf("%w: user_id is required", service.ErrInvalidTemplate)
	}

	return instanceID, timeslotID, req.UserID, nil
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadPath, key)
	}
	return id, nil
}

func windowParams(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()

	from := time.Now()
	if s := q.Get("from"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q", s)
		}
		from = t
	}

	to := from.AddDate(0, 1, 0)
	if s := q.Get("to"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q", s)
		}
		to = t
	}

	return from, to, nil
}
