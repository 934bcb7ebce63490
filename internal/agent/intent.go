package agent

import (
	"context"
	"log"
	"strings"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// IntentClassifier routes a user query to an intent. Keyword rules run
// first because they are deterministic and free; the chat model only
// breaks ties the lexicon cannot resolve.
type IntentClassifier struct {
	model ports.ChatModel
}

func NewIntentClassifier(model ports.ChatModel) *IntentClassifier {
	return &IntentClassifier{model: model}
}

var (
	schedulingKeywords = []string{
		"calendly", "scheduling link", "enlace de reserva", "link de reserva",
		"disponibilidad", "availability", "hueco libre", "book a slot",
	}
	emailKeywords = []string{
		"email", "correo", "e-mail", "mail", "inbox", "bandeja",
		"asunto", "subject", "reenvía", "reenviar", "forward",
	}
	calendarKeywords = []string{
		"calendar", "calendario", "agenda", "evento", "event", "cita",
		"reunión", "reunion", "meeting", "recordatorio", "reminder",
		"mañana", "tomorrow", "hoy", "today", "semana", "week",
	}
	commsKeywords = []string{
		"whatsapp", "mensaje", "message", "avisa", "avísale", "escríbele",
		"escribele", "text him", "text her", "notifica", "notify",
	}
)

const intentPrompt = `Classify the user request into exactly one category.
Answer with a single word: CALENDAR, EMAIL, SCHEDULING, COMMS or GENERAL.

CALENDAR: events, meetings, agenda, reminders.
EMAIL: reading, searching or sending email.
SCHEDULING: booking links, availability windows.
COMMS: sending messages to other people.
GENERAL: anything else.`

// Classify returns the intent for a query. The keyword pass is ordered:
// scheduling and email cues outrank the broader calendar vocabulary so
// "send my calendly link" does not land on the calendar agent.
func (c *IntentClassifier) Classify(ctx context.Context, query string) models.Intent {
	lower := strings.ToLower(query)

	switch {
	case containsAny(lower, schedulingKeywords):
		return models.IntentScheduling
	case containsAny(lower, emailKeywords):
		return models.IntentEmail
	case containsAny(lower, calendarKeywords):
		return models.IntentCalendar
	case containsAny(lower, commsKeywords):
		return models.IntentComms
	}

	return c.classifyLLM(ctx, query)
}

func (c *IntentClassifier) classifyLLM(ctx context.Context, query string) models.Intent {
	if c.model == nil {
		return models.IntentGeneral
	}

	history := []models.ChatTurn{{Role: "system", Content: intentPrompt}}
	answer, err := c.model.Chat(ctx, history, query)
	if err != nil {
		log.Printf("[IntentClassifier.classifyLLM] falling back to general: error=%v", err)
		return models.IntentGeneral
	}

	switch {
	case strings.Contains(answer, "SCHEDULING"):
		return models.IntentScheduling
	case strings.Contains(answer, "EMAIL"):
		return models.IntentEmail
	case strings.Contains(answer, "CALENDAR"):
		return models.IntentCalendar
	case strings.Contains(answer, "COMMS"):
		return models.IntentComms
	default:
		return models.IntentGeneral
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
