package models

import "time"

// Intent is the coarse classification of a user query.
type Intent string

const (
	IntentCalendar   Intent = "CALENDAR"
	IntentEmail      Intent = "EMAIL"
	IntentScheduling Intent = "SCHEDULING"
	IntentComms      Intent = "COMMS"
	IntentGeneral    Intent = "GENERAL"
)

// AgentCode is the specialist mnemonic mapped from an Intent.
type AgentCode string

const (
	AgentCalendar   AgentCode = "CAL"
	AgentEmail      AgentCode = "EMAIL"
	AgentScheduling AgentCode = "SCHED"
	AgentComms      AgentCode = "COMMS"
	AgentGeneral    AgentCode = "GEN"
)

// AgentForIntent maps an intent to its specialist code.
func AgentForIntent(intent Intent) AgentCode {
	switch intent {
	case IntentCalendar:
		return AgentCalendar
	case IntentEmail:
		return AgentEmail
	case IntentScheduling:
		return AgentScheduling
	case IntentComms:
		return AgentComms
	default:
		return AgentGeneral
	}
}

// StageTiming records how long one orchestrator stage took.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
}

// AgentState carries one request through the orchestrator graph. It is
// never shared across requests; stages mutate it strictly in order.
type AgentState struct {
	RequestID      string            `json:"request_id"`
	UserQuery      string            `json:"user_query"`
	ChatHistory    []ChatTurn        `json:"chat_history,omitempty"`
	Intent         Intent            `json:"intent,omitempty"`
	AgentCode      AgentCode         `json:"agent_code,omitempty"`
	RAGContext     string            `json:"rag_context,omitempty"`
	Citations      []string          `json:"citations,omitempty"`
	Conflicts      []*ExtractedEvent `json:"conflicts,omitempty"`
	PolicyRefusal  string            `json:"policy_refusal,omitempty"`
	ToolResults    []*ToolResult     `json:"tool_results,omitempty"`
	Response       string            `json:"response,omitempty"`
	IterationCount int               `json:"iteration_count"`
	StartedAt      time.Time         `json:"started_at"`
	Timings        []StageTiming     `json:"timings,omitempty"`
}
