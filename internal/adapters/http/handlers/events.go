package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// EventsHandler exposes the extracted-event review queue and the mirrored
// provider calendar.
type EventsHandler struct {
	events ports.EventRepository
	txm    ports.TransactionManager
	audit  ports.AuditRepository
	ids    *id.Generator
}

func NewEventsHandler(events ports.EventRepository, txm ports.TransactionManager, audit ports.AuditRepository) *EventsHandler {
	return &EventsHandler{events: events, txm: txm, audit: audit, ids: id.New()}
}

type eventList struct {
	Total  int                      `json:"total"`
	Events []*models.ExtractedEvent `json:"events"`
}

// List returns extracted events, optionally filtered by a comma-separated
// status query parameter.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []models.EventStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				statuses = append(statuses, models.EventStatus(s))
			}
		}
	}
	limit := parseIntQuery(r, "limit", 50)

	events, err := h.events.ListExtracted(r.Context(), statuses, limit)
	if err != nil {
		respondError(w, "list_failed", err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.ExtractedEvent{}
	}
	respondJSON(w, eventList{Total: len(events), Events: events}, http.StatusOK)
}

type suggestRequest struct {
	Title    string     `json:"title"`
	StartAt  *time.Time `json:"start_at,omitempty"`
	EndAt    *time.Time `json:"end_at,omitempty"`
	Location string     `json:"location,omitempty"`
	Source   string     `json:"source,omitempty"`
}

// Suggest enqueues a manually proposed event into the review queue with
// status suggested.
func (h *EventsHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[suggestRequest](r, w)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		respondError(w, "invalid_request", "title is required", http.StatusBadRequest)
		return
	}
	if req.StartAt != nil && req.EndAt != nil && !req.EndAt.After(*req.StartAt) {
		respondError(w, "invalid_request", "end_at must be after start_at", http.StatusBadRequest)
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	now := time.Now()
	ev := &models.ExtractedEvent{
		ID:         h.ids.GenerateEventID(),
		Source:     source,
		Title:      strings.TrimSpace(req.Title),
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Location:   req.Location,
		Status:     models.EventSuggested,
		Confidence: 1.0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.storeSuggested(r.Context(), ev); err != nil {
		respondError(w, "store_failed", err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("[EventsHandler.Suggest] event suggested: id=%s, title=%q", ev.ID, ev.Title)
	respondJSON(w, ev, http.StatusCreated)
}

// storeSuggested commits the event and its audit entry together.
func (h *EventsHandler) storeSuggested(ctx context.Context, ev *models.ExtractedEvent) error {
	write := func(ctx context.Context) error {
		if err := h.events.InsertExtracted(ctx, ev); err != nil {
			return err
		}
		if h.audit == nil {
			return nil
		}
		return h.audit.Record(ctx, &models.AuditRecord{
			ID:        h.ids.GenerateAuditID(),
			Action:    "event_suggested",
			Actor:     "user",
			Payload:   map[string]any{"event_id": ev.ID, "title": ev.Title, "source": ev.Source},
			CreatedAt: time.Now(),
		})
	}
	if h.txm == nil {
		return write(ctx)
	}
	return h.txm.WithTransaction(ctx, write)
}

// Get returns a single extracted event by ID.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.GetExtracted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondEventError(w, err)
		return
	}
	respondJSON(w, ev, http.StatusOK)
}

// Approve confirms a proposed or suggested event.
func (h *EventsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.EventConfirmed)
}

// Reject discards an event from the review queue.
func (h *EventsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, models.EventRejected)
}

func (h *EventsHandler) transition(w http.ResponseWriter, r *http.Request, status models.EventStatus) {
	id := chi.URLParam(r, "id")
	if err := h.events.UpdateStatus(r.Context(), id, status); err != nil {
		h.respondEventError(w, err)
		return
	}
	log.Printf("[EventsHandler.transition] event updated: id=%s, status=%s", id, status)
	respondJSON(w, map[string]string{"id": id, "status": string(status)}, http.StatusOK)
}

func (h *EventsHandler) respondEventError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		respondError(w, "not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(w, "invalid_transition", err.Error(), http.StatusConflict)
	default:
		respondError(w, "event_error", err.Error(), http.StatusInternalServerError)
	}
}

type calendarList struct {
	Total  int                     `json:"total"`
	Events []*models.CalendarEvent `json:"events"`
}

// Calendar returns provider-materialised events in the requested window,
// defaulting to the next seven days.
func (h *EventsHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := parseTimeQuery(r, "from", now)
	to := parseTimeQuery(r, "to", now.AddDate(0, 0, 7))
	if !to.After(from) {
		respondError(w, "invalid_request", "to must be after from", http.StatusBadRequest)
		return
	}

	events, err := h.events.ListCalendar(r.Context(), from, to)
	if err != nil {
		respondError(w, "list_failed", err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*models.CalendarEvent{}
	}
	respondJSON(w, calendarList{Total: len(events), Events: events}, http.StatusOK)
}
