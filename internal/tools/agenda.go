package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// ListAgendaEventsTool lists the upcoming calendar events from local storage.
type ListAgendaEventsTool struct {
	events ports.EventRepository
}

func NewListAgendaEventsTool(events ports.EventRepository) *ListAgendaEventsTool {
	return &ListAgendaEventsTool{events: events}
}

func (t *ListAgendaEventsTool) Name() string { return "list_agenda_events" }

func (t *ListAgendaEventsTool) Description() string {
	return "Lists upcoming calendar events, including pending proposals awaiting confirmation."
}

func (t *ListAgendaEventsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of events to return (default: 20)",
				"default":     20,
			},
			"days": map[string]any{
				"type":        "integer",
				"description": "How many days ahead to list (default: 30)",
				"default":     30,
			},
		},
	}
}

func (t *ListAgendaEventsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	limit := 20
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	days := 30
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	from := time.Now()
	to := from.AddDate(0, 0, days)

	confirmed, err := t.events.ListCalendar(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	if len(confirmed) > limit {
		confirmed = confirmed[:limit]
	}

	pending, err := t.events.ListExtracted(ctx, []models.EventStatus{
		models.EventProposed, models.EventSuggested, models.EventConfirmed,
	}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}

	// Keep only pending events inside the window
	var upcoming []*models.ExtractedEvent
	for _, ev := range pending {
		if ev.Overlaps(from, to) {
			upcoming = append(upcoming, ev)
		}
	}

	return AgendaResult{
		From:      from,
		To:        to,
		Confirmed: confirmed,
		Pending:   upcoming,
		Formatted: formatAgenda(confirmed, upcoming),
	}, nil
}

func formatAgenda(confirmed []*models.CalendarEvent, pending []*models.ExtractedEvent) string {
	if len(confirmed) == 0 && len(pending) == 0 {
		return "No hay eventos en la agenda para estos días."
	}

	var b strings.Builder
	if len(confirmed) > 0 {
		b.WriteString("Agenda:\n")
		for _, ev := range confirmed {
			fmt.Fprintf(&b, "- %s: %s a %s\n", ev.Title,
				ev.StartAt.Format("Mon 02 Jan 15:04"), ev.EndAt.Format("15:04"))
		}
	}
	if len(pending) > 0 {
		b.WriteString("Pendientes de confirmar:\n")
		for _, ev := range pending {
			when := "fecha por determinar"
			if ev.StartAt != nil {
				when = ev.StartAt.Format("Mon 02 Jan 15:04")
			}
			fmt.Fprintf(&b, "- %s (%s, estado: %s)\n", ev.Title, when, ev.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

type AgendaResult struct {
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Confirmed []*models.CalendarEvent  `json:"confirmed"`
	Pending   []*models.ExtractedEvent `json:"pending"`
	Formatted string                   `json:"formatted_text"`
}

// CreateCalendarEventTool materialises an event on the local calendar and
// returns its provider event id.
type CreateCalendarEventTool struct {
	events ports.EventRepository
	ids    *id.Generator
}

func NewCreateCalendarEventTool(events ports.EventRepository) *CreateCalendarEventTool {
	return &CreateCalendarEventTool{events: events, ids: id.New()}
}

func (t *CreateCalendarEventTool) Name() string { return "create_calendar_event" }

func (t *CreateCalendarEventTool) Description() string {
	return "Creates a calendar event with a title and a start/end time. Use RFC3339 timestamps."
}

func (t *CreateCalendarEventTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{
				"type":        "string",
				"description": "Event title",
			},
			"start": map[string]any{
				"type":        "string",
				"description": "Start time, RFC3339",
			},
			"end": map[string]any{
				"type":        "string",
				"description": "End time, RFC3339 (default: one hour after start)",
			},
			"location": map[string]any{
				"type":        "string",
				"description": "Optional location, appended to the title",
			},
			"extracted_id": map[string]any{
				"type":        "string",
				"description": "Optional id of the confirmed extracted event this calendar entry materialises",
			},
		},
		"required": []string{"title", "start"},
	}
}

func (t *CreateCalendarEventTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	var extracted *models.ExtractedEvent
	if extractedID, ok := args["extracted_id"].(string); ok && strings.TrimSpace(extractedID) != "" {
		var err error
		extracted, err = t.events.GetExtracted(ctx, extractedID)
		if err != nil {
			return nil, fmt.Errorf("extracted event %s not found: %w", extractedID, err)
		}
	}

	title, _ := args["title"].(string)
	if strings.TrimSpace(title) == "" && extracted != nil {
		title = extracted.Title
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	var start time.Time
	var err error
	if startRaw, ok := args["start"].(string); ok && startRaw != "" {
		start, err = time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid start time %q: %w", startRaw, err)
		}
	} else if extracted != nil && extracted.StartAt != nil {
		start = *extracted.StartAt
	} else {
		return nil, fmt.Errorf("start is required")
	}

	end := start.Add(time.Hour)
	if endRaw, ok := args["end"].(string); ok && endRaw != "" {
		end, err = time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid end time %q: %w", endRaw, err)
		}
	} else if extracted != nil && extracted.EndAt != nil {
		end = *extracted.EndAt
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}
	if location, ok := args["location"].(string); ok && location != "" {
		title = title + " @ " + location
	}

	now := time.Now()
	ev := &models.CalendarEvent{
		ID:         t.ids.GenerateCalendarEventID(),
		Provider:   "local",
		Title:      title,
		StartAt:    start,
		EndAt:      end,
		Status:     "confirmed",
		LastSyncAt: &now,
	}
	ev.ProviderEventID = ev.ID
	if extracted != nil {
		ev.ExtractedID = &extracted.ID
	}
	if err := t.events.UpsertCalendar(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	if extracted != nil {
		// The extracted event is materialised; close its lifecycle.
		if err := t.events.UpdateStatus(ctx, extracted.ID, models.EventCreated); err != nil {
			return nil, fmt.Errorf("failed to mark extracted event created: %w", err)
		}
	}

	return CreatedEventResult{
		EventID:   ev.ID,
		Provider:  ev.Provider,
		Title:     ev.Title,
		StartAt:   ev.StartAt,
		EndAt:     ev.EndAt,
		Formatted: fmt.Sprintf("Evento creado: %s, %s a %s.", ev.Title, start.Format("Mon 02 Jan 15:04"), end.Format("15:04")),
	}, nil
}

type CreatedEventResult struct {
	EventID   string    `json:"event_id"`
	Provider  string    `json:"provider"`
	Title     string    `json:"title"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Formatted string    `json:"formatted_text"`
}

// ConfirmAgendaEventTool moves a pending extracted event to confirmed.
type ConfirmAgendaEventTool struct {
	events ports.EventRepository
}

func NewConfirmAgendaEventTool(events ports.EventRepository) *ConfirmAgendaEventTool {
	return &ConfirmAgendaEventTool{events: events}
}

func (t *ConfirmAgendaEventTool) Name() string { return "confirm_agenda_event" }

func (t *ConfirmAgendaEventTool) Description() string {
	return "Confirms a pending agenda event by its event_id."
}

func (t *ConfirmAgendaEventTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_id": map[string]any{
				"type":        "string",
				"description": "The id of the event to confirm",
			},
		},
		"required": []string{"event_id"},
	}
}

func (t *ConfirmAgendaEventTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	eventID, _ := args["event_id"].(string)
	if strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("event_id is required")
	}
	if err := t.events.UpdateStatus(ctx, eventID, models.EventConfirmed); err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id":       eventID,
		"status":         string(models.EventConfirmed),
		"formatted_text": "Evento confirmado.",
	}, nil
}
