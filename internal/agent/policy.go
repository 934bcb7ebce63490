package agent

import (
	"fmt"
	"time"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
)

// PolicyConfig bounds what the agent may schedule and which tools need
// an explicit user confirmation.
type PolicyConfig struct {
	WorkStartHour    int // first bookable hour, inclusive
	WorkEndHour      int // last bookable hour, exclusive
	MaxLookaheadDays int
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		WorkStartHour:    9,
		WorkEndHour:      19,
		MaxLookaheadDays: 90,
	}
}

// destructiveTools mutate external state in ways the user must confirm
// before the agent runs them.
var destructiveTools = map[string]bool{
	"delete_event": true,
	"send_email":   true,
}

// Policy gates event proposals and tool calls. A refusal is returned as
// ErrPolicyRefused wrapped with the human-readable reason, so the
// caller can surface the reason instead of silently failing.
type Policy struct {
	cfg PolicyConfig
	now func() time.Time
}

func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.WorkStartHour == 0 && cfg.WorkEndHour == 0 {
		cfg = DefaultPolicyConfig()
	}
	return &Policy{cfg: cfg, now: time.Now}
}

// CheckEvent validates a proposed event time against working hours and
// the scheduling horizon. Events without a start time pass; the agent
// asks the user for one instead.
func (p *Policy) CheckEvent(event *models.ExtractedEvent) error {
	if event == nil || event.StartAt == nil {
		return nil
	}
	start := *event.StartAt

	if start.Before(p.now()) {
		return domain.Errorf(domain.KindPolicy, "%w: el evento está en el pasado (%s)",
			domain.ErrPolicyRefused, start.Format("2006-01-02 15:04"))
	}

	horizon := p.now().AddDate(0, 0, p.cfg.MaxLookaheadDays)
	if start.After(horizon) {
		return domain.Errorf(domain.KindPolicy, "%w: el evento queda fuera del horizonte de %d días",
			domain.ErrPolicyRefused, p.cfg.MaxLookaheadDays)
	}

	hour := start.Hour()
	if hour < p.cfg.WorkStartHour || hour >= p.cfg.WorkEndHour {
		return domain.Errorf(domain.KindPolicy, "%w: fuera del horario laboral (%02d:00-%02d:00)",
			domain.ErrPolicyRefused, p.cfg.WorkStartHour, p.cfg.WorkEndHour)
	}
	return nil
}

// CheckTool refuses destructive tools unless the user confirmed the
// action in this request.
func (p *Policy) CheckTool(name string, confirmed bool) error {
	if destructiveTools[name] && !confirmed {
		return domain.Errorf(domain.KindPolicy, "%w: %s requiere confirmación explícita",
			domain.ErrPolicyRefused, name)
	}
	return nil
}

// RefusalMessage renders a policy error for the user, stripping the
// sentinel prefix.
func RefusalMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := domain.ErrPolicyRefused.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return fmt.Sprintf("No puedo hacerlo: %s", msg[len(prefix):])
	}
	return msg
}
