package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clara-assistant/clara/internal/domain/models"
)

func completionBody(content string, toolCalls ...ToolCall) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": ChatMessage{
					Role:      "assistant",
					Content:   content,
					ToolCalls: toolCalls,
				},
				"finish_reason": "stop",
			},
		},
	}
}

func TestChat_PrependsSystemMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) == 0 || req.Messages[0].Role != "system" {
			t.Error("expected system message to be prepended")
		}
		json.NewEncoder(w).Encode(completionBody("hola"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "test-model", 512, 0.7)
	resp, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hola"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "hola" {
		t.Errorf("unexpected content: %s", resp.Choices[0].Message.Content)
	}
}

func TestChatWithTools_SetsToolChoice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ToolChoice != "auto" {
			t.Errorf("expected tool_choice auto, got %q", req.ToolChoice)
		}
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "list_agenda_events" {
			t.Errorf("unexpected tools: %+v", req.Tools)
		}
		json.NewEncoder(w).Encode(completionBody("ok"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "test-model", 512, 0.7)
	tools := []Tool{{
		Type: "function",
		Function: ToolFunction{
			Name:        "list_agenda_events",
			Description: "List upcoming events",
			Parameters:  map[string]any{"type": "object"},
		},
	}}
	if _, err := client.ChatWithTools(context.Background(), []ChatMessage{{Role: "user", Content: "agenda"}}, tools); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModel_ChatWithTools_DecodesArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("", ToolCall{
			ID:   "call_1",
			Type: "function",
			Function: FunctionCall{
				Name:      "list_agenda_events",
				Arguments: `{"days": 7}`,
			},
		}))
	}))
	defer server.Close()

	model := NewModel(NewClient(server.URL, "key", "test-model", 512, 0.7))
	decision, err := model.ChatWithTools(context.Background(), nil, "agenda de la semana",
		[]models.ToolDescriptor{{Name: "list_agenda_events", Schema: map[string]any{"type": "object"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decision.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(decision.ToolCalls))
	}
	if decision.ToolCalls[0].Name != "list_agenda_events" {
		t.Errorf("unexpected name: %s", decision.ToolCalls[0].Name)
	}
	if days, ok := decision.ToolCalls[0].Arguments["days"].(float64); !ok || days != 7 {
		t.Errorf("unexpected arguments: %+v", decision.ToolCalls[0].Arguments)
	}
}

func TestModel_Chat_StripsThinkSpans(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("<think>user wants dinner plans</think>Tienes la cena el viernes a las 21:00."))
	}))
	defer server.Close()

	model := NewModel(NewClient(server.URL, "key", "test-model", 512, 0.7))
	answer, err := model.Chat(context.Background(), nil, "¿cuándo es la cena?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Tienes la cena el viernes a las 21:00." {
		t.Errorf("think span not stripped: %q", answer)
	}
}

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		answer    string
		reasoning string
	}{
		{"no span", "plain answer", "plain answer", ""},
		{"single span", "<think>hmm</think>answer", "answer", "hmm"},
		{"unterminated", "answer <think>trailing", "answer", "trailing"},
		{"multiple", "<think>a</think>x<think>b</think>y", "xy", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer, reasoning := splitReasoning(tt.input)
			if answer != tt.answer {
				t.Errorf("answer = %q, want %q", answer, tt.answer)
			}
			if reasoning != tt.reasoning {
				t.Errorf("reasoning = %q, want %q", reasoning, tt.reasoning)
			}
		})
	}
}

func TestChat_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "key", "test-model", 512, 0.7)
	_, err := client.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hola"}})
	if err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
