package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/waypoint-social/waypoint/libs/httpx"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/app"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/profile"
)

type Handler struct {
	service *app.Service
}

func New(service *app.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/profiles", h.create)
	mux.HandleFunc("GET /api/v1/profiles/{region}/{handle}", h.getByHandle)
	mux.HandleFunc("PUT /api/v1/profiles/{id}/display-name", h.updateDisplayName)
	mux.HandleFunc("PUT /api/v1/profiles/{id}/bio", h.updateBio)
	mux.HandleFunc("PUT /api/v1/profiles/{id}/location", h.updateLocation)
	mux.HandleFunc("POST /api/v1/profiles/{id}/posts/increment", h.incrementPosts)
	mux.HandleFunc("POST /api/v1/profiles/{id}/posts/decrement", h.decrementPosts)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string `json:"account_id"`
		Region      string `json:"region"`
		Handle      string `json:"handle"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	p, err := h.service.CreateProfile(r.Context(), app.CreateProfileCommand{
		AccountID:   strings.TrimSpace(req.AccountID),
		Region:      strings.TrimSpace(req.Region),
		Handle:      strings.TrimSpace(req.Handle),
		DisplayName: strings.TrimSpace(req.DisplayName),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) getByHandle(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProfileByHandle(r.Context(), r.PathValue("region"), r.PathValue("handle"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updateDisplayName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateDisplayName(r.Context(), r.PathValue("id"), strings.TrimSpace(req.DisplayName)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateBio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Bio string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateBio(r.Context(), r.PathValue("id"), req.Bio); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req profile.Location
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.service.UpdateLocation(r.Context(), r.PathValue("id"), req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) incrementPosts(w http.ResponseWriter, r *http.Request) {
	if err := h.service.IncrementPostCount(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decrementPosts(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DecrementPostCount(r.Context(), r.PathValue("id")); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
