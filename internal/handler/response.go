package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"buddiesfinder/internal/security"
	"buddiesfinder/internal/service"
	"buddiesfinder/internal/util"
)

const maxBodyBytes = 1 << 20

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries list metadata
type Meta struct {
	Total int `json:"total"`
}

func successResponse(data any, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func listResponse[T any](items []T, message string) Response {
	if items == nil {
		items = []T{}
	}
	return Response{Success: true, Data: items, Message: message, Meta: &Meta{Total: len(items)}}
}

func errorResponse(errText, message string) Response {
	return Response{Success: false, Error: errText, Message: message}
}

// errorStatuses maps service sentinels to a status. The first match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrInvalidInput, http.StatusBadRequest},
	{service.ErrInvalidToken, http.StatusBadRequest},
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrNoPendingLogin, http.StatusUnauthorized},
	{service.ErrEmailNotVerified, http.StatusForbidden},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrNotActivityHost, http.StatusForbidden},
	{service.ErrNotPostAuthor, http.StatusForbidden},
	{service.ErrHostCannotJoin, http.StatusForbidden},
	{service.ErrNotFound, http.StatusNotFound},
	{service.ErrEmailTaken, http.StatusConflict},
	{service.ErrAlreadyJoined, http.StatusConflict},
	{service.ErrActivityFull, http.StatusConflict},
	{service.ErrActivityPast, http.StatusConflict},
	{service.ErrNotJoined, http.StatusConflict},
	{service.ErrOTPNotEnrolled, http.StatusConflict},
	{service.ErrTooManyRequests, http.StatusTooManyRequests},
}

// getStatusCode determines the HTTP status for err and the error text that is
// safe to show. Credential failures collapse to the generic sentinel so the
// specific reason never reaches the client.
func getStatusCode(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.err == service.ErrInvalidInput {
				return e.status, err.Error()
			}
			return e.status, e.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

type responder struct {
	logger *zap.Logger
}

func newResponder(logger *zap.Logger) responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return responder{logger: logger}
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError logs the full error and sends the public form of it.
func (h responder) respondWithError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status, public := getStatusCode(err)
	fields := []zap.Field{
		util.ErrorField(err),
		util.Int("status_code", status),
		util.String("path", r.URL.Path),
	}
	if security.IsCredentialFailure(err) {
		fields = append(fields, util.String("reason", security.FailureReason(err)))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP error response", fields...)
	} else {
		h.logger.Warn("HTTP error response", fields...)
	}
	h.respondWithJSON(w, status, errorResponse(public, message))
}

func (h responder) badRequest(w http.ResponseWriter, err error, message string) {
	h.logger.Debug("Rejected request body", util.ErrorField(err))
	h.respondWithJSON(w, http.StatusBadRequest, errorResponse(err.Error(), message))
}

// decodeJSON reads a single JSON object from the body, rejecting unknown
// fields and oversized payloads.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must hold a single object")
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
