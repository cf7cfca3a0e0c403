package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/service"
)

type ActivityHandler struct {
	responder
	activities *service.ActivityService
}

func NewActivityHandler(activities *service.ActivityService, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{responder: newResponder(logger), activities: activities}
}

// RegisterRoutes expects to be mounted behind RequireAuth.
func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Route("/activities", func(r chi.Router) {
		r.Get("/", h.ListActivities)
		r.Post("/", h.HostActivity)
		r.Put("/{activityID}", h.EditActivity)
		r.Post("/{activityID}/join", h.JoinActivity)
		r.Post("/{activityID}/leave", h.LeaveActivity)
		r.Get("/{activityID}/participants", h.Participants)
	})
}

// ListActivities accepts ?name= and repeated or comma separated ?type=.
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	q := service.ActivityQuery{Name: r.URL.Query().Get("name")}
	for _, v := range r.URL.Query()["type"] {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Types = append(q.Types, t)
			}
		}
	}

	activities, err := h.activities.Upcoming(r.Context(), q)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to list activities")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(activities, ""))
}

func (h *ActivityHandler) HostActivity(w http.ResponseWriter, r *http.Request) {
	var req service.ActivityInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	activity, err := h.activities.Host(r.Context(), accountID(r), req)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to create activity")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(activity, "Activity created"))
}

func (h *ActivityHandler) EditActivity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "activityID")
	if err != nil {
		h.badRequest(w, err, "Invalid activity ID")
		return
	}
	var req service.ActivityInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	activity, err := h.activities.Edit(r.Context(), accountID(r), id, req)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to update activity")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(activity, "Activity updated"))
}

func (h *ActivityHandler) JoinActivity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "activityID")
	if err != nil {
		h.badRequest(w, err, "Invalid activity ID")
		return
	}
	if err := h.activities.Join(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to join activity")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Joined activity"))
}

func (h *ActivityHandler) LeaveActivity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "activityID")
	if err != nil {
		h.badRequest(w, err, "Invalid activity ID")
		return
	}
	if err := h.activities.Leave(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to leave activity")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Left activity"))
}

func (h *ActivityHandler) Participants(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "activityID")
	if err != nil {
		h.badRequest(w, err, "Invalid activity ID")
		return
	}
	people, err := h.activities.Participants(r.Context(), id)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to list participants")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(people, ""))
}
