// Package handler exposes the notification pipeline over HTTP for the rest
// of the platform.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"classlink/internal/common"
)

// NotificationAPI is the slice of the notification service the HTTP layer
// depends on.
type NotificationAPI interface {
	CreateNotification(ctx context.Context, req common.NotificationRequest) (*common.NotificationRecord, error)
	CancelScheduled(id string) error
	UpdateUserPreferences(ctx context.Context, userID string, patch common.PreferencePatch) error
	GetNotificationHistory(userID string, limit int) []common.HistoryEntry
	GetNotificationStats(userID string) common.NotificationStats
}

type Handler struct {
	api NotificationAPI
}

func NewHandler(api NotificationAPI) *Handler {
	return &Handler{api: api}
}

// Routes mounts every endpoint on a new router.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/notifications", h.createNotification).Methods(http.MethodPost)
	api.HandleFunc("/notifications/scheduled/{id}", h.cancelScheduled).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/{userId}/history", h.history).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{userId}/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/preferences/{userId}", h.updatePreferences).Methods(http.MethodPut)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	return r
}

func (h *Handler) createNotification(w http.ResponseWriter, r *http.Request) {
	var req common.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.api.CreateNotification(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, record)
}

func (h *Handler) cancelScheduled(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.api.CancelScheduled(id); err != nil {
		if errors.Is(err, common.ErrUnknownScheduled) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.api.GetNotificationHistory(userID, limit))
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	writeJSON(w, http.StatusOK, h.api.GetNotificationStats(userID))
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	var patch common.PreferencePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.api.UpdateUserPreferences(r.Context(), userID, patch); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
