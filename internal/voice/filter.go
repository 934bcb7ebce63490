package voice

import (
	"regexp"
	"strings"
)

// minSensibleLength is the shortest transcript worth sending to the
// agent. Anything shorter is breathing noise or a cut-off syllable.
const minSensibleLength = 3

var (
	letterPattern = regexp.MustCompile(`[a-zA-ZáéíóúñüÁÉÍÓÚÑÜ]`)
	tokenPattern  = regexp.MustCompile(`[a-zA-ZáéíóúñüÁÉÍÓÚÑÜ]+`)
	// interjectionPattern matches stretched hesitation sounds like
	// "ehhh", "mmm" or "uhm".
	interjectionPattern = regexp.MustCompile(`^[ehmuaoEHMUAO]+$`)
)

// fillerWords are discourse fillers that carry no request on their own,
// Spanish and English alike.
var fillerWords = map[string]bool{
	"este":     true,
	"pues":     true,
	"vale":     true,
	"bueno":    true,
	"entonces": true,
	"osea":     true,
	"ok":       true,
	"okay":     true,
	"well":     true,
	"so":       true,
	"like":     true,
	"hmm":      true,
}

// Sensible reports whether a transcript is worth processing. The
// filter rejects empty strings, fragments under three characters,
// text without a single Spanish or English letter, and transcripts
// made only of fillers or stretched interjections.
func Sensible(transcript string) bool {
	trimmed := strings.TrimSpace(transcript)
	if len([]rune(trimmed)) < minSensibleLength {
		return false
	}
	if !letterPattern.MatchString(trimmed) {
		return false
	}
	for _, token := range tokenPattern.FindAllString(trimmed, -1) {
		if fillerWords[strings.ToLower(token)] || interjectionPattern.MatchString(token) {
			continue
		}
		return true
	}
	return false
}
