package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/waypoint-social/waypoint/libs/httpx"
	"github.com/waypoint-social/waypoint/services/account-service/internal/app"
)

type Handler struct {
	service *app.Service
}

func New(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the account routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/accounts", h.register)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/email", h.changeEmail)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/username", h.changeUsername)
	mux.HandleFunc("PUT /api/v1/accounts/{id}/locale", h.updateLocale)
	mux.HandleFunc("POST /api/v1/accounts/{id}/suspend", h.suspend)
	mux.HandleFunc("POST /api/v1/accounts/{id}/reinstate", h.reinstate)
	mux.HandleFunc("POST /api/v1/accounts/{id}/deactivate", h.deactivate)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region   string `json:"region"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	a, err := h.service.RegisterAccount(r.Context(), app.RegisterAccountCommand{
		Region:   strings.TrimSpace(req.Region),
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":         a.ID,
		"region":     a.Region,
		"username":   a.Username,
		"email":      a.Email,
		"state":      a.State,
		"created_at": a.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) changeEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.ChangeEmail(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Email)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) changeUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.ChangeUsername(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Username)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateLocale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Locale string `json:"locale"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	changed, err := h.service.UpdateLocale(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Locale))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.SuspendAccount(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Reason)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReinstateAccount(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateAccount(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
