package models

import (
	"time"

	"github.com/clara-assistant/clara/internal/domain"
)

// EventStatus is the lifecycle state of an ExtractedEvent.
// Transitions are forward-only: proposed|suggested -> confirmed -> created,
// or any pre-terminal status -> rejected.
type EventStatus string

const (
	EventProposed  EventStatus = "proposed"
	EventSuggested EventStatus = "suggested"
	EventConfirmed EventStatus = "confirmed"
	EventCreated   EventStatus = "created"
	EventRejected  EventStatus = "rejected"
)

// CanTransition reports whether s may move to next.
func (s EventStatus) CanTransition(next EventStatus) bool {
	switch s {
	case EventProposed, EventSuggested:
		return next == EventConfirmed || next == EventRejected
	case EventConfirmed:
		return next == EventCreated || next == EventRejected
	default:
		return false
	}
}

// ExtractedEvent is a candidate calendar event discovered in conversation
// messages, emails or scraped content.
type ExtractedEvent struct {
	ID             string      `json:"id"`
	Source         string      `json:"source"`
	Title          string      `json:"title"`
	StartAt        *time.Time  `json:"start_at,omitempty"`
	EndAt          *time.Time  `json:"end_at,omitempty"`
	Timezone       string      `json:"timezone,omitempty"`
	Location       string      `json:"location,omitempty"`
	Attendees      []string    `json:"attendees,omitempty"`
	Status         EventStatus `json:"status"`
	Confidence     float64     `json:"confidence"`
	RelevanceScore *float64    `json:"relevance_score,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Transition mutates Status after validating the move.
func (e *ExtractedEvent) Transition(next EventStatus) error {
	if !e.Status.CanTransition(next) {
		return domain.Errorf(domain.KindApplication, "%w: %s -> %s", domain.ErrInvalidTransition, e.Status, next)
	}
	e.Status = next
	e.UpdatedAt = time.Now()
	return nil
}

// Overlaps reports whether the event intersects the [from, to) window.
// Events without a start never overlap.
func (e *ExtractedEvent) Overlaps(from, to time.Time) bool {
	if e.StartAt == nil {
		return false
	}
	end := e.StartAt.Add(time.Hour)
	if e.EndAt != nil {
		end = *e.EndAt
	}
	return e.StartAt.Before(to) && end.After(from)
}

// CalendarEvent is a provider-materialised event. (Provider,
// ProviderEventID) is unique; rows are created when an ExtractedEvent
// transitions to created and refreshed by provider webhooks.
type CalendarEvent struct {
	ID              string     `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	CalendarID      string     `json:"calendar_id"`
	Title           string     `json:"title"`
	StartAt         time.Time  `json:"start_at"`
	EndAt           time.Time  `json:"end_at"`
	Status          string     `json:"status"`
	ExtractedID     *string    `json:"extracted_id,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
}

// AuditRecord is one entry of the action audit trail.
type AuditRecord struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Payload   map[string]any `json:"payload,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
