package conversation

import (
	"regexp"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// defaultEventDuration applies when a message names a start but no end.
const defaultEventDuration = time.Hour

// threadWindow bounds how far back earlier messages still count as the
// same plan. People split "reunión" and "el viernes a las 10" across
// messages, but not across half an hour.
const threadWindow = 30 * time.Minute

// eventKeywords signal that a message is talking about something
// schedulable. Without at least one, extraction does not run.
var eventKeywords = []string{
	"cena", "comida", "reunión", "reunion", "cita", "quedamos", "vemos",
	"concierto", "fiesta", "partido", "clase", "taller", "evento",
	"dinner", "lunch", "meeting", "appointment", "party", "concert",
	"see you", "nos vemos", "quedada", "café", "cafe", "médico", "medico",
	"dentista", "entrenamiento",
}

var (
	timeRangePattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:h\b|hs\b)?\s*(?:a|hasta|to|-)\s*(?:las\s+)?(\d{1,2})(?::(\d{2}))?\b`)
	timePattern      = regexp.MustCompile(`\b(?:a\s+las?|at)\s+(\d{1,2})(?::(\d{2}))?\b`)
	afternoonPattern = regexp.MustCompile(`de la tarde|de la noche|pm\b|esta noche|tonight`)
)

var relativeDays = []struct {
	cue    string
	offset int
}{
	{"pasado mañana", 2},
	{"mañana", 1},
	{"tomorrow", 1},
	{"hoy", 0},
	{"today", 0},
	{"esta noche", 0},
	{"tonight", 0},
}

var weekdayNames = map[string]time.Weekday{
	"lunes": time.Monday, "monday": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday,
	"miércoles": time.Wednesday, "miercoles": time.Wednesday, "wednesday": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday,
	"sábado": time.Saturday, "sabado": time.Saturday, "saturday": time.Saturday,
	"domingo": time.Sunday, "sunday": time.Sunday,
}

// Extractor finds candidate calendar events in conversation text.
type Extractor struct {
	ids *id.Generator
	now func() time.Time
}

func NewExtractor() *Extractor {
	return &Extractor{ids: id.New(), now: time.Now}
}

// Extract returns a proposed event when the message mentions a
// schedulable activity with a resolvable day, or nil when it does not.
// Confidence grows with each temporal detail the message pins down.
func (e *Extractor) Extract(msg *models.ConversationMessage) *models.ExtractedEvent {
	lower := strings.ToLower(msg.Body)

	keyword := matchKeyword(lower)
	if keyword == "" {
		return nil
	}

	day, dayFound := e.resolveDay(lower, msg.ReceivedAt)
	if !dayFound {
		return nil
	}

	confidence := 0.5
	event := &models.ExtractedEvent{
		ID:        e.ids.GenerateEventID(),
		Source:    "whatsapp:" + msg.MessageSID,
		Title:     extractTitle(msg.Body, keyword),
		Status:    models.EventProposed,
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}

	if start, end, ok := extractTimeRange(lower, day); ok {
		event.StartAt = &start
		event.EndAt = &end
		confidence += 0.4
	} else if start, ok := extractStartTime(lower, day); ok {
		end := start.Add(defaultEventDuration)
		event.StartAt = &start
		event.EndAt = &end
		confidence += 0.3
	} else {
		event.StartAt = &day
		confidence += 0.1
	}

	event.Confidence = confidence
	return event
}

// ExtractFromThread combines msg with recent history so a plan split
// across messages still resolves. The activity, the day and the time
// may each come from a different message inside the thread window. The
// current message must contribute at least one cue of its own;
// otherwise every later message would re-extract the same plan.
func (e *Extractor) ExtractFromThread(history []*models.ConversationMessage, msg *models.ConversationMessage) *models.ExtractedEvent {
	lower := strings.ToLower(msg.Body)
	if matchKeyword(lower) == "" && !hasDayCue(lower) && !hasTimeCue(lower) {
		return nil
	}

	thread := e.threadOf(history, msg)

	// The newest keyword-bearing message names the plan.
	var kwMsg *models.ConversationMessage
	var keyword string
	for i := len(thread) - 1; i >= 0; i-- {
		if kw := matchKeyword(strings.ToLower(thread[i].Body)); kw != "" {
			kwMsg, keyword = thread[i], kw
			break
		}
	}
	if kwMsg == nil {
		return nil
	}

	// The day anchors on the receipt time of the message that names it.
	var day time.Time
	dayFound := false
	for i := len(thread) - 1; i >= 0 && !dayFound; i-- {
		day, dayFound = e.resolveDay(strings.ToLower(thread[i].Body), thread[i].ReceivedAt)
	}
	if !dayFound {
		return nil
	}

	confidence := 0.5
	event := &models.ExtractedEvent{
		ID:        e.ids.GenerateEventID(),
		Source:    "whatsapp:" + msg.MessageSID,
		Title:     extractTitle(kwMsg.Body, keyword),
		Status:    models.EventProposed,
		CreatedAt: e.now(),
		UpdatedAt: e.now(),
	}

	for i := len(thread) - 1; i >= 0 && event.StartAt == nil; i-- {
		l := strings.ToLower(thread[i].Body)
		if start, end, ok := extractTimeRange(l, day); ok {
			event.StartAt = &start
			event.EndAt = &end
			confidence += 0.4
		} else if start, ok := extractStartTime(l, day); ok {
			end := start.Add(defaultEventDuration)
			event.StartAt = &start
			event.EndAt = &end
			confidence += 0.3
		}
	}
	if event.StartAt == nil {
		event.StartAt = &day
		confidence += 0.1
	}

	event.Confidence = confidence
	return event
}

// threadOf filters history down to this conversation turn: messages in
// the half-hour before msg, excluding msg itself, with msg appended
// last so the newest-first scans see it first.
func (e *Extractor) threadOf(history []*models.ConversationMessage, msg *models.ConversationMessage) []*models.ConversationMessage {
	cutoff := msg.ReceivedAt.Add(-threadWindow)
	var thread []*models.ConversationMessage
	for _, m := range history {
		if m.MessageSID == msg.MessageSID {
			continue
		}
		if m.ReceivedAt.Before(cutoff) || m.ReceivedAt.After(msg.ReceivedAt) {
			continue
		}
		thread = append(thread, m)
	}
	return append(thread, msg)
}

func hasDayCue(lower string) bool {
	for _, rel := range relativeDays {
		if strings.Contains(lower, rel.cue) {
			return true
		}
	}
	for name := range weekdayNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func hasTimeCue(lower string) bool {
	return timeRangePattern.MatchString(lower) || timePattern.MatchString(lower)
}

func matchKeyword(lower string) string {
	for _, kw := range eventKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// resolveDay maps relative day cues or weekday names onto a midnight
// anchor relative to when the message arrived.
func (e *Extractor) resolveDay(lower string, receivedAt time.Time) (time.Time, bool) {
	base := receivedAt
	if base.IsZero() {
		base = e.now()
	}
	today := time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, base.Location())

	for _, rel := range relativeDays {
		if strings.Contains(lower, rel.cue) {
			return today.AddDate(0, 0, rel.offset), true
		}
	}

	for name, weekday := range weekdayNames {
		if !strings.Contains(lower, name) {
			continue
		}
		delta := (int(weekday) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta), true
	}

	return time.Time{}, false
}

func extractTimeRange(lower string, day time.Time) (start, end time.Time, ok bool) {
	m := timeRangePattern.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	startHour, startMin := parseClock(m[1], m[2])
	endHour, endMin := parseClock(m[3], m[4])
	if startHour < 0 || endHour < 0 {
		return time.Time{}, time.Time{}, false
	}
	if afternoonPattern.MatchString(lower) {
		startHour = toAfternoon(startHour)
		endHour = toAfternoon(endHour)
	}
	start = day.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute)
	end = day.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute)
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func extractStartTime(lower string, day time.Time) (time.Time, bool) {
	m := timePattern.FindStringSubmatch(lower)
	if m == nil {
		return time.Time{}, false
	}
	hour, minutes := parseClock(m[1], m[2])
	if hour < 0 {
		return time.Time{}, false
	}
	if afternoonPattern.MatchString(lower) {
		hour = toAfternoon(hour)
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minutes)*time.Minute), true
}

func parseClock(hourStr, minStr string) (hour, minutes int) {
	hour = -1
	n := 0
	for _, r := range hourStr {
		n = n*10 + int(r-'0')
	}
	if n >= 0 && n < 24 {
		hour = n
	}
	if minStr != "" {
		m := 0
		for _, r := range minStr {
			m = m*10 + int(r-'0')
		}
		if m < 60 {
			minutes = m
		}
	}
	return hour, minutes
}

func toAfternoon(hour int) int {
	if hour < 12 {
		return hour + 12
	}
	return hour
}

// extractTitle takes the sentence around the first event keyword, which
// is usually what the plan is about.
func extractTitle(body, keyword string) string {
	lowerBody := strings.ToLower(body)
	idx := strings.Index(lowerBody, keyword)
	if idx < 0 {
		return strings.TrimSpace(body)
	}

	start := strings.LastIndexAny(body[:idx], ".!?\n") + 1
	end := idx + len(keyword)
	if rel := strings.IndexAny(body[end:], ".!?\n"); rel >= 0 {
		end += rel
	} else {
		end = len(body)
	}

	title := strings.TrimSpace(body[start:end])
	if runes := []rune(title); len(runes) > 120 {
		title = strings.TrimSpace(string(runes[:120]))
	}
	if title == "" {
		return keyword
	}
	return title
}
