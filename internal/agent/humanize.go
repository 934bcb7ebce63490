package agent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/clara-assistant/clara/internal/domain/models"
)

// Humaniser rewrites raw agent output into natural Spanish-first prose.
// Every transformation is idempotent: running the humaniser over its
// own output changes nothing.
type Humaniser struct{}

func NewHumaniser() *Humaniser {
	return &Humaniser{}
}

// phraseReplacements maps stock English fragments the model tends to
// emit onto their Spanish equivalents.
var phraseReplacements = []struct {
	from string
	to   string
}{
	{"I have scheduled", "He agendado"},
	{"I have sent", "He enviado"},
	{"I found", "He encontrado"},
	{"No events found", "No hay eventos"},
	{"No results found", "Sin resultados"},
	{"Here is", "Aquí tienes"},
	{"Here are", "Aquí tienes"},
	{"Let me know", "Avísame"},
	{"Done!", "¡Listo!"},
	{"Done.", "Listo."},
}

var (
	isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:T(\d{2}):(\d{2})(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?)?\b`)
	// thinkPattern removes chain-of-thought spans some models leak into
	// the final message.
	thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>`)
	// preamblePattern drops hedging openers, one leading sentence at a
	// time.
	preamblePattern = regexp.MustCompile(`(?i)^(let me think|let's see|we note that|okay so|déjame pensar|vamos a ver|veamos|a ver)\b[^.!?:\n]*[.!?:\n]*\s*`)
	// eventRefPattern matches raw event references the model copies out
	// of tool output.
	eventRefPattern = regexp.MustCompile(`event_id=([A-Za-z0-9_-]+)`)
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

const formattedTextMinLen = 50

// Humanise renders the final response. A substantial formatted_text
// from the last tool result wins over the model's own summary, because
// tools format their domain better than the model paraphrases it.
func (h *Humaniser) Humanise(response string, toolResults []*models.ToolResult) string {
	if formatted := lastFormattedText(toolResults); len(formatted) > formattedTextMinLen {
		response = formatted
	}
	response = substituteEventRefs(response, toolResults)
	return h.Polish(response)
}

// Polish applies the text transformations alone, without tool output
// substitution.
func (h *Humaniser) Polish(text string) string {
	text = thinkPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	for {
		stripped := preamblePattern.ReplaceAllString(text, "")
		if stripped == text || stripped == "" {
			text = stripped
			break
		}
		text = stripped
	}
	if text == "" {
		return ""
	}

	for _, r := range phraseReplacements {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	text = humaniseDates(text)
	text = capitalizeFirst(text)
	return ensureTerminator(text)
}

// substituteEventRefs replaces raw event_id=<id> references with the
// matching event title from this request's tool results. Unmatched
// references stay as they are.
func substituteEventRefs(text string, results []*models.ToolResult) string {
	if !eventRefPattern.MatchString(text) {
		return text
	}
	titles := eventTitlesByID(results)
	if len(titles) == 0 {
		return text
	}
	return eventRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := eventRefPattern.FindStringSubmatch(match)[1]
		if title, ok := titles[id]; ok {
			return title
		}
		return match
	})
}

// eventTitlesByID indexes event titles found in tool result payloads,
// looking through top-level objects and object lists.
func eventTitlesByID(results []*models.ToolResult) map[string]string {
	titles := make(map[string]string)
	var collect func(value any)
	collect = func(value any) {
		switch v := value.(type) {
		case map[string]any:
			title, _ := v["title"].(string)
			if title != "" {
				for _, key := range []string{"id", "event_id"} {
					if id, ok := v[key].(string); ok && id != "" {
						titles[id] = title
					}
				}
			}
			for _, nested := range v {
				switch nested.(type) {
				case map[string]any, []any:
					collect(nested)
				}
			}
		case []any:
			for _, item := range v {
				collect(item)
			}
		}
	}
	for _, result := range results {
		if result != nil && result.Success {
			collect(result.Result)
		}
	}
	return titles
}

func lastFormattedText(results []*models.ToolResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Success && results[i].FormattedText != "" {
			return strings.TrimSpace(results[i].FormattedText)
		}
	}
	return ""
}

// humaniseDates rewrites ISO 8601 dates as Spanish prose, keeping the
// time when one is present.
func humaniseDates(text string) string {
	return isoDatePattern.ReplaceAllStringFunc(text, func(match string) string {
		m := isoDatePattern.FindStringSubmatch(match)
		year, month, day := atoiSafe(m[1]), atoiSafe(m[2]), atoiSafe(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return match
		}
		date := fmt.Sprintf("%d de %s de %d", day, spanishMonths[month-1], year)
		if m[4] != "" {
			date += fmt.Sprintf(" a las %d:%s", atoiSafe(m[4]), m[5])
		}
		return date
	})
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return text
	}
	if !unicode.IsLetter(r) {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}

// ensureTerminator appends a period unless the text already ends in
// terminal punctuation.
func ensureTerminator(text string) string {
	last, _ := utf8.DecodeLastRuneInString(text)
	switch last {
	case '.', '!', '?', ':', '…':
		return text
	}
	return text + "."
}

// FormatEventTime renders an event window for user-facing messages.
func FormatEventTime(start time.Time, end *time.Time) string {
	s := fmt.Sprintf("%d de %s de %d a las %d:%02d",
		start.Day(), spanishMonths[start.Month()-1], start.Year(), start.Hour(), start.Minute())
	if end != nil {
		s += fmt.Sprintf(" hasta las %d:%02d", end.Hour(), end.Minute())
	}
	return s
}
