package llm

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/clara-assistant/clara/internal/domain"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

// Model adapts Client to the ports.ChatModel interface used by the
// orchestrator.
type Model struct {
	client *Client
}

func NewModel(client *Client) *Model {
	return &Model{client: client}
}

func (m *Model) Chat(ctx context.Context, history []models.ChatTurn, userText string) (string, error) {
	resp, err := m.client.Chat(ctx, buildMessages(history, userText))
	if err != nil {
		return "", domain.NewError(domain.KindTransport, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Errorf(domain.KindTransport, "%w: empty choices", domain.ErrLLMUnavailable)
	}
	content, _ := splitReasoning(resp.Choices[0].Message.Content)
	return content, nil
}

func (m *Model) ChatWithTools(ctx context.Context, history []models.ChatTurn, userText string, tools []models.ToolDescriptor) (*ports.ChatDecision, error) {
	llmTools := make([]Tool, 0, len(tools))
	for _, t := range tools {
		llmTools = append(llmTools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}

	resp, err := m.client.ChatWithTools(ctx, buildMessages(history, userText), llmTools)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.Errorf(domain.KindTransport, "%w: empty choices", domain.ErrLLMUnavailable)
	}

	msg := resp.Choices[0].Message
	content, reasoning := splitReasoning(msg.Content)
	decision := &ports.ChatDecision{
		Content:   content,
		Reasoning: reasoning,
	}

	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				log.Printf("[Model.ChatWithTools] bad tool arguments: tool=%s, error=%v", tc.Function.Name, err)
				continue
			}
		}
		decision.ToolCalls = append(decision.ToolCalls, ports.ToolInvocation{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return decision, nil
}

func buildMessages(history []models.ChatTurn, userText string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: userText})
	return messages
}

// splitReasoning separates <think>...</think> spans from the visible
// answer. Reasoning models emit these inline.
func splitReasoning(content string) (answer, reasoning string) {
	for {
		start := strings.Index(content, "<think>")
		if start < 0 {
			break
		}
		end := strings.Index(content, "</think>")
		if end < 0 || end < start {
			// Unterminated span: drop everything after the open tag
			reasoning += content[start+len("<think>"):]
			content = content[:start]
			break
		}
		reasoning += content[start+len("<think>") : end]
		content = content[:start] + content[end+len("</think>"):]
	}
	return strings.TrimSpace(content), strings.TrimSpace(reasoning)
}
