package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/service"
)

// AdminHandler exposes moderation deletes. The service checks the role.
type AdminHandler struct {
	responder
	admin *service.AdminService
}

func NewAdminHandler(admin *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{responder: newResponder(logger), admin: admin}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Delete("/activities/{activityID}", h.DeleteActivity)
		r.Delete("/posts/{postID}", h.DeletePost)
	})
}

func (h *AdminHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "activityID")
	if err != nil {
		h.badRequest(w, err, "Invalid activity ID")
		return
	}
	if err := h.admin.DeleteActivity(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to delete activity")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Activity deleted"))
}

func (h *AdminHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	if err := h.admin.DeletePost(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to delete post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Post deleted"))
}
