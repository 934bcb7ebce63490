package voice

import (
	"context"
	"strings"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/circuitbreaker"
	"github.com/clara-assistant/clara/internal/domain"
)

const (
	defaultSpeechEndpoint = "http://localhost:8000"
	transcriptionsPath    = "/v1/audio/transcriptions"
	// STTTimeout bounds one transcription call.
	STTTimeout = 30 * time.Second
)

// Whisper implements ports.Transcriber against an OpenAI-compatible
// transcription endpoint.
type Whisper struct {
	client  *speechClient
	model   string
	breaker *circuitbreaker.CircuitBreaker
}

func NewWhisper(endpoint, model string) *Whisper {
	if endpoint == "" {
		endpoint = defaultSpeechEndpoint
	}
	if model == "" {
		model = "whisper-1"
	}
	return &Whisper{
		client:  newSpeechClient(endpoint),
		model:   model,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language,omitempty"`
	Duration float32          `json:"duration,omitempty"`
	Segments []whisperSegment `json:"segments,omitempty"`
}

type whisperSegment struct {
	Start        float32 `json:"start"`
	End          float32 `json:"end"`
	Text         string  `json:"text"`
	NoSpeechProb float32 `json:"no_speech_prob,omitempty"`
}

func (w *Whisper) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", domain.Errorf(domain.KindApplication, "%w: audio is empty", domain.ErrTranscriptionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, STTTimeout)
	defer cancel()

	fields := map[string]string{
		"model":           w.model,
		"response_format": "verbose_json",
	}
	if language != "" {
		fields["language"] = language
	}

	var response whisperResponse
	err := w.breaker.Execute(func() error {
		return w.client.postMultipart(ctx, transcriptionsPath, fields, "file", "audio.wav", audio, &response)
	})
	if err != nil {
		return "", domain.NewError(domain.KindTransport, domain.ErrTranscriptionFailed.Error(), err)
	}

	return strings.TrimSpace(response.Text), nil
}
