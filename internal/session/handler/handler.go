// Package handler exposes session validation over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idsync/internal/session"
	"idsync/pkg/platform/httputil"
	"idsync/pkg/requestcontext"
)

// Service defines the interface for session validation.
type Service interface {
	Validate(ctx context.Context, credential, requiredScope string) (*session.Result, error)
}

// ValidateRequest is the POST /v1/sessions/validate body.
type ValidateRequest struct {
	Credential    string `json:"credential"`
	RequiredScope string `json:"required_scope,omitempty"`
}

type Handler struct {
	logger   *slog.Logger
	sessions Service
}

// New creates a new session Handler.
func New(sessions Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		sessions: sessions,
	}
}

// Register registers the session routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/sessions/validate", h.handleValidate)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ValidateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.LogError(h.logger, r, requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.sessions.Validate(ctx, req.Credential, req.RequiredScope)
	if err != nil {
		httputil.LogError(h.logger, r, requestcontext.RequestID(ctx), err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}
