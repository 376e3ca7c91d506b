package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/herald-app/herald/internal/auth"
	"github.com/herald-app/herald/internal/model"
	"github.com/herald-app/herald/internal/store"
	ws "github.com/herald-app/herald/internal/websocket"
)

const maxTitleLen = 200

type EventHandler struct {
	events *store.EventStore
	hub    *ws.Hub
	logger *slog.Logger
}

func NewEventHandler(events *store.EventStore, hub *ws.Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, hub: hub, logger: logger}
}

type createEventRequest struct {
	Title    string  `json:"title"`
	Date     string  `json:"date"`
	ImageURL *string `json:"image_url"`
}

// Create handles POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	title, ok := validateTitle(w, req.Title)
	if !ok {
		return
	}

	date, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be RFC3339 format")
		return
	}

	event, err := h.events.Create(userID, title, date, trimImageURL(req.ImageURL))
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	h.hub.Broadcast(ws.NewMessage("event", "created", event.ID, nil))
	writeJSON(w, http.StatusCreated, event)
}

// List handles GET /api/events with an optional ?status= filter.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	status := r.URL.Query().Get("status")
	if status != "" && status != model.EventStatusUpcoming && status != model.EventStatusCompleted {
		writeError(w, http.StatusBadRequest, "status must be upcoming or completed")
		return
	}

	events, err := h.events.ListByUser(userID, status)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListPublic handles GET /api/events/public (no auth): upcoming events only.
func (h *EventHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListUpcoming()
	if err != nil {
		h.logger.Error("list public events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type updateEventRequest struct {
	Title    *string `json:"title"`
	Date     *string `json:"date"`
	Status   *string `json:"status"`
	ImageURL *string `json:"image_url"`
}

// Update handles PATCH /api/events/{id}. Absent fields keep their values.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	event, ok := h.loadOwnedEvent(w, r)
	if !ok {
		return
	}

	var req updateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	title := event.Title
	if req.Title != nil {
		title, ok = validateTitle(w, *req.Title)
		if !ok {
			return
		}
	}

	date := event.Date
	if req.Date != nil {
		parsed, err := time.Parse(time.RFC3339, *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be RFC3339 format")
			return
		}
		date = parsed
	}

	status := event.Status
	if req.Status != nil {
		if *req.Status != model.EventStatusUpcoming && *req.Status != model.EventStatusCompleted {
			writeError(w, http.StatusBadRequest, "status must be upcoming or completed")
			return
		}
		status = *req.Status
	}

	imageURL := event.ImageURL
	if req.ImageURL != nil {
		imageURL = trimImageURL(req.ImageURL)
	}

	updated, err := h.events.Update(event.ID, title, date, imageURL, status)
	if err != nil {
		h.logger.Error("update event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.hub.Broadcast(ws.NewMessage("event", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/events/{id}
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	event, ok := h.loadOwnedEvent(w, r)
	if !ok {
		return
	}

	if err := h.events.Delete(event.ID); err != nil {
		h.logger.Error("delete event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}

	h.hub.Broadcast(ws.NewMessage("event", "deleted", event.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// loadOwnedEvent fetches the event in the path and enforces that the caller
// owns it. Writes the error response itself when returning !ok.
func (h *EventHandler) loadOwnedEvent(w http.ResponseWriter, r *http.Request) (*model.Event, bool) {
	userID := auth.UserID(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return nil, false
	}

	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return nil, false
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return nil, false
	}
	if event.UserID != userID {
		writeError(w, http.StatusForbidden, "you do not own this event")
		return nil, false
	}
	return event, true
}

func validateTitle(w http.ResponseWriter, raw string) (string, bool) {
	title := strings.TrimSpace(raw)
	if title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return "", false
	}
	if len(title) > maxTitleLen {
		writeError(w, http.StatusBadRequest, "title cannot exceed 200 characters")
		return "", false
	}
	return title, true
}

func trimImageURL(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
