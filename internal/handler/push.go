package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/herald-app/herald/internal/auth"
	"github.com/herald-app/herald/internal/push"
	"github.com/herald-app/herald/internal/store"
)

type NotificationHandler struct {
	subs    *store.PushStore
	service *push.Service
	sched   *push.Scheduler
	logger  *slog.Logger
}

func NewNotificationHandler(subs *store.PushStore, svc *push.Service, sched *push.Scheduler, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{subs: subs, service: svc, sched: sched, logger: logger}
}

// PublicKey handles GET /api/notifications/public-key (no auth; the client
// needs it before it can subscribe).
func (h *NotificationHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Subscribe handles POST /api/notifications/subscribe
func (h *NotificationHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.subs.Upsert(userID, req.Endpoint, req.P256dh, req.Auth)
	if err != nil {
		h.logger.Error("save subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles POST /api/notifications/unsubscribe
func (h *NotificationHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	sub, err := h.subs.GetByEndpoint(req.Endpoint)
	if err != nil {
		h.logger.Error("lookup subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}
	if sub == nil || sub.UserID != userID {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}

	if err := h.subs.DeleteByEndpoint(req.Endpoint); err != nil {
		h.logger.Error("delete subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/notifications/test: fans a test payload out to the
// caller's devices so they can verify their setup end to end.
func (h *NotificationHandler) Test(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	subs, err := h.subs.ListByUser(userID)
	if err != nil {
		h.logger.Error("list subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if len(subs) == 0 {
		writeError(w, http.StatusNotFound, "no push subscriptions found")
		return
	}

	payload := push.Payload{
		Title: "Test Notification",
		Body:  "This is a test notification from Herald",
		Data:  push.PayloadData{URL: "/dashboard"},
	}

	successful, failed := 0, 0
	for i := range subs {
		err := h.service.Send(&subs[i], payload)
		switch {
		case err == nil:
			successful++
		case errors.Is(err, push.ErrExpired):
			failed++
			if derr := h.subs.DeleteByEndpoint(subs[i].Endpoint); derr != nil {
				h.logger.Error("remove expired subscription", "error", derr)
			}
		default:
			failed++
			h.logger.Warn("test push failed", "endpoint", subs[i].Endpoint, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"successful": successful,
		"failed":     failed,
		"total":      len(subs),
	})
}

// TriggerCheck handles POST /api/notifications/trigger-check: runs one
// scheduler sweep synchronously.
func (h *NotificationHandler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.TriggerCheck(r.Context()); err != nil {
		h.logger.Error("manual sweep", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "notification check completed"})
}
