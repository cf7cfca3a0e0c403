package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/service"
	"buddiesfinder/internal/util"
)

// AuthHandler serves registration, login and password recovery.
type AuthHandler struct {
	responder
	auth     *service.AuthService
	sessions *Sessions
}

func NewAuthHandler(auth *service.AuthService, sessions *Sessions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{responder: newResponder(logger), auth: auth, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginResponse struct {
	RequiresSecondFactor bool `json:"requires_2fa"`
	Account              any  `json:"account,omitempty"`
}

// RegisterRoutes mounts the auth routes. login is wrapped by the caller's
// rate limiter.
func (h *AuthHandler) RegisterRoutes(r chi.Router, loginLimit func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/verify-email", h.VerifyEmail)
		r.With(loginLimit).Post("/login", h.Login)
		r.With(loginLimit).Post("/2fa", h.SecondFactor)
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)
		r.With(h.sessions.RequireAuth).Post("/logout", h.Logout)
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}

	account, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.respondWithError(w, r, err, "Registration failed")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(account, "Check your email to verify your account"))
	h.logger.Info("Account registered via HTTP",
		util.Int64("user_id", account.ID),
		util.Duration("duration", time.Since(startTime)))
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.respondWithError(w, r, err, "Email verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Email verified, you can now log in"))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondWithError(w, r, err, "Login failed")
		return
	}
	if err := h.sessions.Start(w, r, res.Session); err != nil {
		h.respondWithError(w, r, err, "Login failed")
		return
	}

	if res.RequiresSecondFactor {
		h.respondWithJSON(w, http.StatusAccepted, successResponse(loginResponse{RequiresSecondFactor: true}, "Enter the code from your authenticator app"))
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(loginResponse{Account: res.Account}, "Logged in"))
	h.logger.Debug("Login via HTTP",
		util.Int64("user_id", res.Account.ID),
		util.Duration("duration", time.Since(startTime)))
}

// SecondFactor completes the login that the pending snapshot on this session
// belongs to.
func (h *AuthHandler) SecondFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}

	pending := sessionFrom(r.Context()).snap.PendingAccountID
	res, err := h.auth.CompleteSecondFactor(r.Context(), pending, req.Code)
	if err != nil {
		h.respondWithError(w, r, err, "Verification failed")
		return
	}
	if err := h.sessions.Start(w, r, res.Session); err != nil {
		h.respondWithError(w, r, err, "Verification failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(loginResponse{Account: res.Account}, "Logged in"))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), accountID(r)); err != nil {
		h.respondWithError(w, r, err, "Logout failed")
		return
	}
	h.sessions.End(w, r)
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.respondWithError(w, r, err, "Password reset request failed")
		return
	}
	h.respondWithJSON(w, http.StatusAccepted, successResponse(nil, "If the address is registered, a reset link is on its way"))
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, err, "Invalid request body")
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password, req.ConfirmPassword); err != nil {
		h.respondWithError(w, r, err, "Password reset failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated, please log in"))
}
