package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/service"
)

// ProfileHandler serves the signed-in account's profile, its second factor
// settings and user search.
type ProfileHandler struct {
	responder
	profiles *service.ProfileService
	auth     *service.AuthService
}

func NewProfileHandler(profiles *service.ProfileService, auth *service.AuthService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{responder: newResponder(logger), profiles: profiles, auth: auth}
}

// RegisterRoutes expects to be mounted behind RequireAuth.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Get("/", h.GetProfile)
		r.Put("/", h.UpdateProfile)
		r.Post("/otp", h.BeginOTP)
		r.Post("/otp/confirm", h.ConfirmOTP)
		r.Delete("/otp", h.DisableOTP)
		r.Get("/security-events", h.SecurityEvents)
	})
	r.Get("/users/search", h.SearchUsers)
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Profile(r.Context(), accountID(r))
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load profile")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(profile, ""))
}

func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	account, err := h.profiles.UpdateProfile(r.Context(), accountID(r), req)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to update profile")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(account, "Profile updated"))
}

func (h *ProfileHandler) BeginOTP(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.auth.BeginOTPEnrollment(r.Context(), accountID(r))
	if err != nil {
		h.respondWithError(w, r, err, "Failed to start two-factor setup")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(enrollment, "Scan the QR code, then confirm with a code"))
}

func (h *ProfileHandler) ConfirmOTP(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	if err := h.auth.ConfirmOTPEnrollment(r.Context(), accountID(r), req.Code); err != nil {
		h.respondWithError(w, r, err, "Failed to enable two-factor authentication")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Two-factor authentication enabled"))
}

func (h *ProfileHandler) DisableOTP(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.DisableOTP(r.Context(), accountID(r)); err != nil {
		h.respondWithError(w, r, err, "Failed to disable two-factor authentication")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Two-factor authentication disabled"))
}

func (h *ProfileHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.profiles.SecurityEvents(r.Context(), accountID(r))
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load security events")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(events, ""))
}

func (h *ProfileHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.profiles.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondWithError(w, r, err, "Search failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(users, ""))
}
