package agent

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// ConflictChecker looks for existing events that collide with a time
// window the user is asking about. Queries without an extractable
// window produce no conflicts.
type ConflictChecker struct {
	events ports.EventRepository
	now    func() time.Time
}

func NewConflictChecker(events ports.EventRepository) *ConflictChecker {
	return &ConflictChecker{events: events, now: time.Now}
}

// Check returns pending or confirmed events overlapping the window the
// query refers to.
func (c *ConflictChecker) Check(ctx context.Context, query string) ([]*models.ExtractedEvent, error) {
	window, ok := c.windowFromQuery(query)
	if !ok {
		return nil, nil
	}

	conflicts, err := c.events.FindOverlapping(ctx, window.from, window.to)
	if err != nil {
		return nil, fmt.Errorf("overlap lookup failed: %w", err)
	}
	if len(conflicts) > 0 {
		log.Printf("[ConflictChecker.Check] conflicts found: count=%d, from=%s, to=%s",
			len(conflicts), window.from.Format(time.RFC3339), window.to.Format(time.RFC3339))
	}
	return conflicts, nil
}

// ProposedWindow exposes the parsed window for policy checks.
func (c *ConflictChecker) ProposedWindow(query string) (from, to time.Time, ok bool) {
	window, found := c.windowFromQuery(query)
	return window.from, window.to, found
}

type timeWindow struct {
	from time.Time
	to   time.Time
}

var hourPattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:h\b|:00|am|pm|de la tarde|de la mañana)?`)

// windowFromQuery extracts a coarse day window from relative date words
// and narrows it when the query names an hour. It is intentionally
// conservative: no window means no conflict stage, not a guess.
func (c *ConflictChecker) windowFromQuery(query string) (timeWindow, bool) {
	lower := strings.ToLower(query)
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var day time.Time
	switch {
	case strings.Contains(lower, "pasado mañana"):
		day = today.AddDate(0, 0, 2)
	case strings.Contains(lower, "mañana"), strings.Contains(lower, "tomorrow"):
		day = today.AddDate(0, 0, 1)
	case strings.Contains(lower, "hoy"), strings.Contains(lower, "today"):
		day = today
	case strings.Contains(lower, "esta semana"), strings.Contains(lower, "this week"):
		return timeWindow{from: today, to: today.AddDate(0, 0, 7)}, true
	default:
		if day = c.weekdayFromQuery(lower, today); day.IsZero() {
			return timeWindow{}, false
		}
	}

	if m := hourPattern.FindStringSubmatch(lower); m != nil {
		if hour := atoiSafe(m[1]); hour >= 0 && hour < 24 {
			if strings.Contains(lower, "pm") || strings.Contains(lower, "de la tarde") {
				if hour < 12 {
					hour += 12
				}
			}
			start := day.Add(time.Duration(hour) * time.Hour)
			if minutes := atoiSafe(m[2]); minutes > 0 && minutes < 60 {
				start = start.Add(time.Duration(minutes) * time.Minute)
			}
			return timeWindow{from: start, to: start.Add(time.Hour)}, true
		}
	}

	return timeWindow{from: day, to: day.AddDate(0, 0, 1)}, true
}

var weekdays = map[string]time.Weekday{
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miércoles": time.Wednesday, "miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sábado": time.Saturday, "sabado": time.Saturday, "saturday": time.Saturday,
	"domingo": time.Sunday, "sunday": time.Sunday,
}

// weekdayFromQuery resolves a weekday name to the next occurrence of
// that day, never today.
func (c *ConflictChecker) weekdayFromQuery(lower string, today time.Time) time.Time {
	for name, weekday := range weekdays {
		if !strings.Contains(lower, name) {
			continue
		}
		delta := (int(weekday) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta)
	}
	return time.Time{}
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	if s == "" {
		return -1
	}
	return n
}
