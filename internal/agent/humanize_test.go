package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/clara-assistant/clara/internal/domain/models"
)

func TestPolish_Phrases(t *testing.T) {
	h := NewHumaniser()

	got := h.Polish("I found 3 eventos para ti")
	if !strings.HasPrefix(got, "He encontrado") {
		t.Errorf("expected Spanish phrase, got %q", got)
	}
}

func TestPolish_ISODates(t *testing.T) {
	h := NewHumaniser()

	tests := []struct {
		in   string
		want string
	}{
		{"la reunión es el 2025-12-16", "La reunión es el 16 de diciembre de 2025."},
		{"cita el 2026-03-10T16:30:00Z con el dentista", "Cita el 10 de marzo de 2026 a las 16:30 con el dentista."},
	}
	for _, tt := range tests {
		if got := h.Polish(tt.in); got != tt.want {
			t.Errorf("Polish(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPolish_CapitalizeAndTerminator(t *testing.T) {
	h := NewHumaniser()

	if got := h.Polish("tienes dos reuniones mañana"); got != "Tienes dos reuniones mañana." {
		t.Errorf("unexpected output %q", got)
	}
	if got := h.Polish("¿Quieres que lo confirme?"); got != "¿Quieres que lo confirme?" {
		t.Errorf("question mark should not gain a period, got %q", got)
	}
}

func TestPolish_Idempotent(t *testing.T) {
	h := NewHumaniser()

	inputs := []string{
		"I have scheduled la cita para el 2025-12-16T10:00:00Z",
		"tienes dos reuniones mañana",
		"agenda: 2026-01-05 y 2026-01-06",
	}
	for _, in := range inputs {
		once := h.Polish(in)
		twice := h.Polish(once)
		if once != twice {
			t.Errorf("Polish not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestPolish_Empty(t *testing.T) {
	h := NewHumaniser()

	if got := h.Polish("   "); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestHumanise_PrefersSubstantialFormattedText(t *testing.T) {
	h := NewHumaniser()

	long := "Agenda:\n- Reunión con María el 16 de diciembre de 2025 a las 10:00\n- Dentista a las 16:30"
	results := []*models.ToolResult{
		{Success: true, FormattedText: long, ToolName: "list_agenda_events"},
	}

	got := h.Humanise("you have two events", results)
	if !strings.Contains(got, "Reunión con María") {
		t.Errorf("expected tool formatted text to win, got %q", got)
	}
}

func TestHumanise_ShortFormattedTextLoses(t *testing.T) {
	h := NewHumaniser()

	results := []*models.ToolResult{
		{Success: true, FormattedText: "ok", ToolName: "send_whatsapp"},
	}

	got := h.Humanise("mensaje enviado a Juan", results)
	if got != "Mensaje enviado a Juan." {
		t.Errorf("short formatted text should not replace the answer, got %q", got)
	}
}

func TestHumanise_FailedResultsIgnored(t *testing.T) {
	h := NewHumaniser()

	results := []*models.ToolResult{
		{Success: false, FormattedText: strings.Repeat("error detail ", 10)},
	}

	got := h.Humanise("no pude completar la acción", results)
	if strings.Contains(got, "error detail") {
		t.Errorf("failed tool output should be ignored, got %q", got)
	}
}

func TestPolish_StripsThinkSpans(t *testing.T) {
	h := NewHumaniser()

	in := "<think>the user wants the agenda\nso I should list it</think>Tienes dentista mañana"
	if got := h.Polish(in); got != "Tienes dentista mañana." {
		t.Errorf("think span should be stripped, got %q", got)
	}

	once := h.Polish(in)
	if twice := h.Polish(once); once != twice {
		t.Errorf("not idempotent: %q then %q", once, twice)
	}
}

func TestPolish_DropsPreambles(t *testing.T) {
	h := NewHumaniser()

	tests := []struct {
		in   string
		want string
	}{
		{"Let me think about this. Tienes dos reuniones", "Tienes dos reuniones."},
		{"We note that the calendar is busy. La agenda está llena", "La agenda está llena."},
		{"Vamos a ver. Déjame pensar. El viernes estás libre", "El viernes estás libre."},
		{"A ver qué hay: no tienes nada el lunes", "No tienes nada el lunes."},
	}
	for _, tt := range tests {
		if got := h.Polish(tt.in); got != tt.want {
			t.Errorf("Polish(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanise_SubstitutesEventRefs(t *testing.T) {
	h := NewHumaniser()

	results := []*models.ToolResult{
		{Success: true, ToolName: "list_agenda_events", Result: map[string]any{
			"events": []any{
				map[string]any{"id": "ev_abc123", "title": "Cena con Laura"},
				map[string]any{"id": "ev_def456", "title": "Dentista"},
			},
		}},
	}

	got := h.Humanise("He confirmado event_id=ev_abc123 para el viernes", results)
	if !strings.Contains(got, "Cena con Laura") {
		t.Errorf("expected title substitution, got %q", got)
	}
	if strings.Contains(got, "event_id=") {
		t.Errorf("raw reference should be gone, got %q", got)
	}
}

func TestHumanise_UnknownEventRefKept(t *testing.T) {
	h := NewHumaniser()

	got := h.Humanise("He confirmado event_id=ev_missing", nil)
	if !strings.Contains(got, "event_id=ev_missing") {
		t.Errorf("unmatched reference must survive, got %q", got)
	}
}

func TestFormatEventTime(t *testing.T) {
	start := time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	got := FormatEventTime(start, &end)
	want := "10 de marzo de 2026 a las 16:30 hasta las 17:30"
	if got != want {
		t.Errorf("FormatEventTime = %q, want %q", got, want)
	}
}
