package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/service"
)

type PostHandler struct {
	responder
	feed *service.FeedService
}

func NewPostHandler(feed *service.FeedService, logger *zap.Logger) *PostHandler {
	return &PostHandler{responder: newResponder(logger), feed: feed}
}

type commentRequest struct {
	Content string `json:"content"`
}

// RegisterRoutes expects to be mounted behind RequireAuth.
func (h *PostHandler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", h.Feed)
		r.Get("/featured", h.Featured)
		r.Post("/", h.CreatePost)
		r.Get("/{postID}", h.GetPost)
		r.Put("/{postID}", h.EditPost)
		r.Delete("/{postID}", h.DeletePost)
		r.Post("/{postID}/comments", h.Comment)
		r.Post("/{postID}/like", h.Like)
		r.Delete("/{postID}/like", h.Unlike)
	})
	r.Get("/users/{userID}/posts", h.UserPosts)
}

func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.feed.Feed(r.Context(), accountID(r))
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load feed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(posts, ""))
}

func (h *PostHandler) Featured(w http.ResponseWriter, r *http.Request) {
	posts, err := h.feed.Featured(r.Context(), accountID(r))
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load featured posts")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(posts, ""))
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	post, err := h.feed.Post(r.Context(), accountID(r), id)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(post, ""))
}

func (h *PostHandler) UserPosts(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "userID")
	if err != nil {
		h.badRequest(w, err, "Invalid user ID")
		return
	}
	feed, err := h.feed.ByAuthor(r.Context(), accountID(r), id)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to load posts")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(feed, ""))
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req service.PostInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	post, err := h.feed.CreatePost(r.Context(), accountID(r), req)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to create post")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(post, "Post created"))
}

func (h *PostHandler) EditPost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	var req service.PostInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	post, err := h.feed.EditPost(r.Context(), accountID(r), id, req)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to update post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(post, "Post updated"))
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	if err := h.feed.DeletePost(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to delete post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Post deleted"))
}

func (h *PostHandler) Comment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	comment, err := h.feed.Comment(r.Context(), accountID(r), id, req.Content)
	if err != nil {
		h.respondWithError(w, r, err, "Failed to add comment")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(comment, "Comment added"))
}

func (h *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	if err := h.feed.Like(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to like post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, ""))
}

func (h *PostHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		h.badRequest(w, err, "Invalid post ID")
		return
	}
	if err := h.feed.Unlike(r.Context(), accountID(r), id); err != nil {
		h.respondWithError(w, r, err, "Failed to unlike post")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, ""))
}
