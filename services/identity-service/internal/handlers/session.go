package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/waypoint-social/waypoint/libs/httpx"
	"github.com/waypoint-social/waypoint/services/identity-service/internal/app"
)

type Handler struct {
	service *app.Service
}

func New(service *app.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sessions", h.start)
	mux.HandleFunc("POST /api/v1/sessions/{id}/verify", h.verify)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.revoke)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		Region    string `json:"region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.AccountID) == "" {
		http.Error(w, "account_id is required", http.StatusBadRequest)
		return
	}

	started, err := h.service.StartSession(r.Context(), req.AccountID, req.Region)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"session_id": started.Session.ID,
		"token":      started.Token,
		"expires_at": started.Session.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	sess, err := h.service.VerifySession(r.Context(), r.PathValue("id"), req.Token)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"account_id": sess.AccountID,
		"region":     sess.Region,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokeSession(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
