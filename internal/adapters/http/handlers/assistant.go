package handlers

import (
	"net/http"
	"strings"

	"github.com/clara-assistant/clara/internal/agent"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// AssistantHandler serves text requests against the orchestrator and
// exposes the tool catalogue.
type AssistantHandler struct {
	orchestrator *agent.Orchestrator
	executor     ports.ToolExecutor
}

func NewAssistantHandler(orchestrator *agent.Orchestrator, executor ports.ToolExecutor) *AssistantHandler {
	return &AssistantHandler{orchestrator: orchestrator, executor: executor}
}

type textRequest struct {
	Query   string            `json:"query"`
	History []models.ChatTurn `json:"chat_history,omitempty"`
	// TopK overrides the retrieval depth for this request; absent keeps
	// the configured default, zero disables retrieval.
	TopK *int `json:"top_k,omitempty"`
	// Confirmed marks that the user approved a destructive action.
	Confirmed bool `json:"confirmed,omitempty"`
}

type textResponse struct {
	RequestID  string               `json:"request_id"`
	Response   string               `json:"text"`
	Intent     models.Intent        `json:"intent"`
	Agent      models.AgentCode     `json:"agent"`
	Citations  []string             `json:"citations,omitempty"`
	Iterations int                  `json:"iterations"`
	Timings    []models.StageTiming `json:"timings"`
	Tools      []*models.ToolResult `json:"tool_results,omitempty"`
	Refusal    string               `json:"policy_refusal,omitempty"`
}

func (h *AssistantHandler) Text(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[textRequest](r, w)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondError(w, "invalid_request", "query is required", http.StatusBadRequest)
		return
	}

	opts := agent.DefaultRunOptions()
	if req.TopK != nil {
		opts.TopK = *req.TopK
	}
	opts.Confirmed = req.Confirmed

	state, err := h.orchestrator.RunWithOptions(r.Context(), req.Query, req.History, opts)
	if err != nil {
		respondError(w, "request_failed", err.Error(), http.StatusBadGateway)
		return
	}

	respondJSON(w, textResponse{
		RequestID:  state.RequestID,
		Response:   state.Response,
		Intent:     state.Intent,
		Agent:      state.AgentCode,
		Citations:  state.Citations,
		Iterations: state.IterationCount,
		Timings:    state.Timings,
		Tools:      state.ToolResults,
		Refusal:    state.PolicyRefusal,
	}, http.StatusOK)
}

type emailSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmailSend dispatches a message through the send_email tool and returns
// the delivery envelope.
func (h *AssistantHandler) EmailSend(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[emailSendRequest](r, w)
	if !ok {
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Body) == "" {
		respondError(w, "invalid_request", "to and body are required", http.StatusBadRequest)
		return
	}

	result := h.executor.Execute(r.Context(), "send_email", map[string]any{
		"to":      req.To,
		"subject": req.Subject,
		"body":    req.Body,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	respondJSON(w, result, status)
}

type toolList struct {
	Total int                     `json:"total"`
	Tools []models.ToolDescriptor `json:"tools"`
}

func (h *AssistantHandler) Tools(w http.ResponseWriter, r *http.Request) {
	descriptors := h.executor.List(r.Context())
	respondJSON(w, toolList{Total: len(descriptors), Tools: descriptors}, http.StatusOK)
}
