package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/adapters/metrics"
	"github.com/clara-assistant/clara/internal/conversation"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// TwilioValidator verifies messenger webhook signatures.
type TwilioValidator interface {
	Validate(requestURL string, form url.Values, signature string) error
}

// CalendlyValidator verifies scheduling webhook signatures.
type CalendlyValidator interface {
	Validate(body []byte, header string) error
}

// WebhookHandler ingests messenger and scheduling provider callbacks.
type WebhookHandler struct {
	ingestor *conversation.Ingestor
	events   ports.EventRepository
	ids      *id.Generator
	twilio   TwilioValidator
	calendly CalendlyValidator
	// PublicURL is the externally visible base URL signatures were
	// computed against, e.g. behind a proxy.
	PublicURL string
}

func NewWebhookHandler(ingestor *conversation.Ingestor, events ports.EventRepository, twilio TwilioValidator, calendly CalendlyValidator) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		events:   events,
		ids:      id.New(),
		twilio:   twilio,
		calendly: calendly,
	}
}

// WhatsApp handles the messenger delivery webhook. Replays of the same
// MessageSid are acknowledged without reprocessing.
func (h *WebhookHandler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
		return
	}

	if h.twilio != nil {
		requestURL := h.requestURL(r)
		if err := h.twilio.Validate(requestURL, r.PostForm, r.Header.Get("X-Twilio-Signature")); err != nil {
			log.Printf("[WebhookHandler.WhatsApp] signature rejected: %v", err)
			metrics.MessagesIngestedTotal.WithLabelValues("rejected").Inc()
			respondError(w, "invalid_signature", "signature validation failed", http.StatusForbidden)
			return
		}
	}

	sid := r.PostFormValue("MessageSid")
	body := r.PostFormValue("Body")
	from := r.PostFormValue("From")
	if sid == "" || body == "" || from == "" {
		respondError(w, "invalid_request", "MessageSid, From and Body are required", http.StatusBadRequest)
		return
	}

	msg := &models.ConversationMessage{
		MessageSID:     sid,
		ConversationID: from,
		From:           from,
		To:             r.PostFormValue("To"),
		Body:           body,
		ReceivedAt:     time.Now(),
	}

	accepted, err := h.ingestor.Ingest(r.Context(), msg)
	if err != nil {
		metrics.MessagesIngestedTotal.WithLabelValues("error").Inc()
		respondError(w, "ingest_failed", err.Error(), http.StatusInternalServerError)
		return
	}

	result := "duplicate"
	if accepted {
		result = "accepted"
	}
	metrics.MessagesIngestedTotal.WithLabelValues(result).Inc()
	respondJSON(w, map[string]any{"status": result, "message_sid": sid}, http.StatusOK)
}

type calendlyPayload struct {
	Event   string `json:"event"`
	Payload struct {
		URI       string    `json:"uri"`
		Name      string    `json:"name"`
		Status    string    `json:"status"`
		StartTime time.Time `json:"start_time"`
		EndTime   time.Time `json:"end_time"`
		Event     string    `json:"event"`
	} `json:"payload"`
}

// Calendly handles booking lifecycle callbacks and mirrors them into
// the calendar store.
func (h *WebhookHandler) Calendly(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1024*1024))
	if err != nil {
		respondError(w, "invalid_request", "unreadable body", http.StatusBadRequest)
		return
	}

	if h.calendly != nil {
		if err := h.calendly.Validate(body, r.Header.Get("Calendly-Webhook-Signature")); err != nil {
			log.Printf("[WebhookHandler.Calendly] signature rejected: %v", err)
			respondError(w, "invalid_signature", "signature validation failed", http.StatusForbidden)
			return
		}
	}

	var payload calendlyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, "invalid_request", "malformed payload", http.StatusBadRequest)
		return
	}
	if payload.Payload.URI == "" {
		respondError(w, "invalid_request", "payload.uri is required", http.StatusBadRequest)
		return
	}

	status := "confirmed"
	if payload.Event == "invitee.canceled" {
		status = "canceled"
	}
	if h.events != nil && !payload.Payload.StartTime.IsZero() {
		now := time.Now()
		ev := &models.CalendarEvent{
			ID:              h.ids.GenerateCalendarEventID(),
			Provider:        "calendly",
			ProviderEventID: payload.Payload.URI,
			Title:           payload.Payload.Name,
			StartAt:         payload.Payload.StartTime,
			EndAt:           payload.Payload.EndTime,
			Status:          status,
			LastSyncAt:      &now,
		}
		if err := h.events.UpsertCalendar(r.Context(), ev); err != nil {
			log.Printf("[WebhookHandler.Calendly] upsert failed: uri=%s, error=%v", payload.Payload.URI, err)
			respondError(w, "store_failed", "could not store booking", http.StatusInternalServerError)
			return
		}
	}

	log.Printf("[WebhookHandler.Calendly] event received: type=%s, uri=%s, status=%s", payload.Event, payload.Payload.URI, status)
	respondJSON(w, map[string]string{"status": "accepted"}, http.StatusOK)
}

func (h *WebhookHandler) requestURL(r *http.Request) string {
	if h.PublicURL != "" {
		return h.PublicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
