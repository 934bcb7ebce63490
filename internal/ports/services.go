package ports

import (
	"context"

	"github.com/clara-assistant/clara/internal/domain/models"
)

// EmbeddingResult is one embedded text with cache provenance.
type EmbeddingResult struct {
	Embedding []float32
	FromCache bool
}

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (*EmbeddingResult, error)
	Dimension() int
}

// Transcriber converts captured audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

// Synthesizer streams synthesized speech for a text. Chunks are raw
// PCM16 frames delivered in order on the returned channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}

// ChatModel is the LLM used for reasoning and drafting.
type ChatModel interface {
	Chat(ctx context.Context, history []models.ChatTurn, userText string) (string, error)
	ChatWithTools(ctx context.Context, history []models.ChatTurn, userText string, tools []models.ToolDescriptor) (*ChatDecision, error)
}

// ChatDecision is the model's next step: either final text or tool calls.
type ChatDecision struct {
	Content   string
	Reasoning string
	ToolCalls []ToolInvocation
}

// ToolInvocation is one requested tool call.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// AgentEventFunc observes orchestration progress. Implementations must
// be fast and non-blocking; events fire on the request path.
type AgentEventFunc func(name string, payload map[string]any)

// ToolExecutor runs a named tool and always returns an envelope, even
// on failure.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) *models.ToolResult
	List(ctx context.Context) []models.ToolDescriptor
}

// MetricsRecorder is the mutation surface of the metrics registry.
type MetricsRecorder interface {
	RecordRequest(durationMs float64, success bool)
	RecordStage(stage string, durationMs float64)
	RecordTool(name string, durationMs float64, success bool)
	RecordCache(hit bool)
	RecordCacheEviction()
	SetCacheSize(n int)
	RecordVoicePhase(phase string, durationMs float64)
}
