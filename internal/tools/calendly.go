package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/adapters/retry"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// CalendlyConfig carries the scheduling provider credentials.
type CalendlyConfig struct {
	Token   string
	UserURI string // the owner's Calendly user URI
	BaseURL string // defaults to the public API
}

const defaultCalendlyBaseURL = "https://api.calendly.com"

type calendlyClient struct {
	cfg         CalendlyConfig
	httpClient  *http.Client
	retryConfig retry.BackoffConfig
}

func newCalendlyClient(cfg CalendlyConfig) *calendlyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCalendlyBaseURL
	}
	return &calendlyClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		retryConfig: retry.HTTPConfig(),
	}
}

func (c *calendlyClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var respBody []byte
	err := retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("provider error: %s - %s", resp.Status, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(respBody, out)
}

// GetSchedulingLinksTool lists the owner's active scheduling links.
type GetSchedulingLinksTool struct {
	client *calendlyClient
}

func NewGetSchedulingLinksTool(cfg CalendlyConfig) *GetSchedulingLinksTool {
	return &GetSchedulingLinksTool{client: newCalendlyClient(cfg)}
}

func (t *GetSchedulingLinksTool) Name() string { return "get_scheduling_links" }

func (t *GetSchedulingLinksTool) Description() string {
	return "Lists the owner's active scheduling links with their names and booking URLs."
}

func (t *GetSchedulingLinksTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *GetSchedulingLinksTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := url.Values{}
	query.Set("user", t.client.cfg.UserURI)
	query.Set("active", "true")

	var resp struct {
		Collection []struct {
			Name          string `json:"name"`
			SchedulingURL string `json:"scheduling_url"`
			Duration      int    `json:"duration"`
		} `json:"collection"`
	}
	if err := t.client.get(ctx, "/event_types", query, &resp); err != nil {
		return nil, err
	}

	links := make([]SchedulingLink, 0, len(resp.Collection))
	for _, et := range resp.Collection {
		links = append(links, SchedulingLink{
			Name:            et.Name,
			URL:             et.SchedulingURL,
			DurationMinutes: et.Duration,
		})
	}
	return SchedulingLinksResult{Total: len(links), Links: links}, nil
}

type SchedulingLink struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	DurationMinutes int    `json:"duration_minutes"`
}

type SchedulingLinksResult struct {
	Total int              `json:"total"`
	Links []SchedulingLink `json:"links"`
}

// ListCalendlyEventsTool returns scheduled bookings in a window, the
// inverse of free time.
type ListCalendlyEventsTool struct {
	client *calendlyClient
}

func NewListCalendlyEventsTool(cfg CalendlyConfig) *ListCalendlyEventsTool {
	return &ListCalendlyEventsTool{client: newCalendlyClient(cfg)}
}

func (t *ListCalendlyEventsTool) Name() string { return "list_calendly_events" }

func (t *ListCalendlyEventsTool) Description() string {
	return "Lists scheduled bookings in the coming days so free slots can be derived."
}

func (t *ListCalendlyEventsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"days": map[string]any{
				"type":        "integer",
				"description": "How many days ahead to check (default: 7)",
				"default":     7,
			},
		},
	}
}

func (t *ListCalendlyEventsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	days := 7
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	now := time.Now().UTC()
	query := url.Values{}
	query.Set("user", t.client.cfg.UserURI)
	query.Set("min_start_time", now.Format(time.RFC3339))
	query.Set("max_start_time", now.AddDate(0, 0, days).Format(time.RFC3339))
	query.Set("status", "active")

	var resp struct {
		Collection []struct {
			Name      string    `json:"name"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"collection"`
	}
	if err := t.client.get(ctx, "/scheduled_events", query, &resp); err != nil {
		return nil, err
	}

	bookings := make([]Booking, 0, len(resp.Collection))
	for _, ev := range resp.Collection {
		bookings = append(bookings, Booking{
			Name:    ev.Name,
			StartAt: ev.StartTime,
			EndAt:   ev.EndTime,
		})
	}
	return AvailabilityResult{
		From:     now,
		To:       now.AddDate(0, 0, days),
		Bookings: bookings,
	}, nil
}

type Booking struct {
	Name    string    `json:"name"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type AvailabilityResult struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Bookings []Booking `json:"bookings"`
}

func (c *calendlyClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var respBody []byte
	err = retry.WithBackoffHTTP(ctx, c.retryConfig, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return resp.StatusCode, fmt.Errorf("provider error: %s - %s", resp.Status, string(respBody))
		}
		return resp.StatusCode, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(respBody, out)
}

// CreateCalendlyEventTool mints a single-use booking link for one of the
// owner's event types.
type CreateCalendlyEventTool struct {
	client *calendlyClient
}

func NewCreateCalendlyEventTool(cfg CalendlyConfig) *CreateCalendlyEventTool {
	return &CreateCalendlyEventTool{client: newCalendlyClient(cfg)}
}

func (t *CreateCalendlyEventTool) Name() string { return "create_calendly_event" }

func (t *CreateCalendlyEventTool) Description() string {
	return "Creates a single-use Calendly booking link for an event type, to share with one invitee."
}

func (t *CreateCalendlyEventTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_type": map[string]any{
				"type":        "string",
				"description": "Name of the event type to book (e.g. \"Entrevista 30min\")",
			},
		},
		"required": []string{"event_type"},
	}
}

func (t *CreateCalendlyEventTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	wanted, _ := args["event_type"].(string)
	if strings.TrimSpace(wanted) == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	query := url.Values{}
	query.Set("user", t.client.cfg.UserURI)
	query.Set("active", "true")
	var types struct {
		Collection []struct {
			URI  string `json:"uri"`
			Name string `json:"name"`
		} `json:"collection"`
	}
	if err := t.client.get(ctx, "/event_types", query, &types); err != nil {
		return nil, err
	}

	var ownerURI string
	for _, et := range types.Collection {
		if strings.EqualFold(et.Name, wanted) {
			ownerURI = et.URI
			break
		}
	}
	if ownerURI == "" {
		return nil, fmt.Errorf("no event type named %q", wanted)
	}

	var created struct {
		Resource struct {
			BookingURL string `json:"booking_url"`
		} `json:"resource"`
	}
	payload := map[string]any{
		"max_event_count": 1,
		"owner":           ownerURI,
		"owner_type":      "EventType",
	}
	if err := t.client.post(ctx, "/scheduling_links", payload, &created); err != nil {
		return nil, err
	}

	return map[string]any{
		"event_type":     wanted,
		"booking_url":    created.Resource.BookingURL,
		"formatted_text": "Enlace de reserva: " + created.Resource.BookingURL,
	}, nil
}

// IngestCalendlyEventsTool mirrors upcoming Calendly bookings into the
// local calendar store so the agenda reflects them.
type IngestCalendlyEventsTool struct {
	client *calendlyClient
	events ports.EventRepository
	ids    *id.Generator
}

func NewIngestCalendlyEventsTool(cfg CalendlyConfig, events ports.EventRepository) *IngestCalendlyEventsTool {
	return &IngestCalendlyEventsTool{
		client: newCalendlyClient(cfg),
		events: events,
		ids:    id.New(),
	}
}

func (t *IngestCalendlyEventsTool) Name() string { return "ingest_calendly_events" }

func (t *IngestCalendlyEventsTool) Description() string {
	return "Syncs upcoming Calendly bookings into the local agenda."
}

func (t *IngestCalendlyEventsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"days": map[string]any{
				"type":        "integer",
				"description": "How many days ahead to sync (default: 30)",
				"default":     30,
			},
		},
	}
}

func (t *IngestCalendlyEventsTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	days := 30
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	now := time.Now().UTC()
	query := url.Values{}
	query.Set("user", t.client.cfg.UserURI)
	query.Set("min_start_time", now.Format(time.RFC3339))
	query.Set("max_start_time", now.AddDate(0, 0, days).Format(time.RFC3339))
	query.Set("status", "active")

	var resp struct {
		Collection []struct {
			URI       string    `json:"uri"`
			Name      string    `json:"name"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"collection"`
	}
	if err := t.client.get(ctx, "/scheduled_events", query, &resp); err != nil {
		return nil, err
	}

	ingested := 0
	for _, booking := range resp.Collection {
		syncedAt := time.Now()
		ev := &models.CalendarEvent{
			ID:              t.ids.GenerateCalendarEventID(),
			Provider:        "calendly",
			ProviderEventID: booking.URI,
			Title:           booking.Name,
			StartAt:         booking.StartTime,
			EndAt:           booking.EndTime,
			Status:          "confirmed",
			LastSyncAt:      &syncedAt,
		}
		if err := t.events.UpsertCalendar(ctx, ev); err != nil {
			return nil, fmt.Errorf("failed to store booking %q: %w", booking.Name, err)
		}
		ingested++
	}

	return map[string]any{
		"ingested":       ingested,
		"from":           now,
		"to":             now.AddDate(0, 0, days),
		"formatted_text": fmt.Sprintf("Sincronizados %d eventos de Calendly.", ingested),
	}, nil
}
