package agent

import (
	"github.com/clara-assistant/clara/internal/domain/models"
)

// specialistTools restricts which tools each specialist may call. The
// general agent gets everything; the rest only see their domain so the
// model cannot wander into unrelated side effects.
var specialistTools = map[models.AgentCode][]string{
	models.AgentCalendar: {
		"list_agenda_events", "confirm_agenda_event", "create_calendar_event",
		"list_calendly_events", "extract_urls", "scrape_web_content",
	},
	models.AgentEmail: {
		"search_emails", "read_email", "send_email",
		"extract_urls", "scrape_web_content",
	},
	models.AgentScheduling: {
		"list_calendly_events", "create_calendly_event", "ingest_calendly_events",
		"get_scheduling_links", "list_agenda_events", "create_calendar_event",
	},
	models.AgentComms: {
		"send_whatsapp", "send_email", "extract_urls",
	},
}

// specialistPrompts give each agent its working instructions. Replies
// are in the user's language; the owner is Spanish-speaking so the
// default register is Spanish.
var specialistPrompts = map[models.AgentCode]string{
	models.AgentCalendar: `You are Clara's calendar specialist. Manage the owner's events:
list, create, update and delete them through your tools. Confirm dates
and times explicitly before creating events. Reply in the user's language.`,
	models.AgentEmail: `You are Clara's email specialist. Search, read and send email on
the owner's behalf. Summarise message bodies instead of quoting them in
full. Reply in the user's language.`,
	models.AgentScheduling: `You are Clara's scheduling specialist. Share booking links and
answer availability questions using the scheduling tools. Reply in the
user's language.`,
	models.AgentComms: `You are Clara's messaging specialist. Send WhatsApp messages for
the owner. Confirm the recipient and the text before sending. Reply in
the user's language.`,
	models.AgentGeneral: `You are Clara, a personal coordination assistant. Answer directly
when you can and use tools when the request needs live data. Reply in
the user's language.`,
}

// toolsFor filters the available descriptors down to the specialist's
// allow list. The general agent is unrestricted.
func toolsFor(code models.AgentCode, available []models.ToolDescriptor) []models.ToolDescriptor {
	allowed, ok := specialistTools[code]
	if !ok {
		return available
	}
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[name] = true
	}

	filtered := make([]models.ToolDescriptor, 0, len(allowed))
	for _, d := range available {
		if allowSet[d.Name] {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func promptFor(code models.AgentCode) string {
	if prompt, ok := specialistPrompts[code]; ok {
		return prompt
	}
	return specialistPrompts[models.AgentGeneral]
}
