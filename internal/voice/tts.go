package voice

import (
	"context"
	"fmt"
	"time"

	"github.com/clara-assistant/clara/internal/adapters/circuitbreaker"
	"github.com/clara-assistant/clara/internal/domain"
)

const (
	speechPath = "/v1/audio/speech"
	// TTSTimeout bounds one synthesis call.
	TTSTimeout = 30 * time.Second
	// ttsChunkSize is 100ms of 16kHz mono PCM16.
	ttsChunkSize = 3200
)

// Kokoro implements ports.Synthesizer against an OpenAI-compatible
// speech endpoint. Audio arrives whole and is re-chunked onto the
// channel so the session can start playback early and stop on
// interruption.
type Kokoro struct {
	client  *speechClient
	model   string
	voice   string
	breaker *circuitbreaker.CircuitBreaker
}

func NewKokoro(endpoint, model, voice string) *Kokoro {
	if endpoint == "" {
		endpoint = defaultSpeechEndpoint
	}
	if model == "" {
		model = "kokoro"
	}
	if voice == "" {
		voice = "ef_dora"
	}
	return &Kokoro{
		client:  newSpeechClient(endpoint),
		model:   model,
		voice:   voice,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type ttsRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

func (k *Kokoro) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if text == "" {
		return nil, domain.Errorf(domain.KindApplication, "%w: text is empty", domain.ErrEmptyContent)
	}

	callCtx, cancel := context.WithTimeout(ctx, TTSTimeout)

	req := ttsRequest{
		Model:          k.model,
		Input:          text,
		Voice:          k.voice,
		ResponseFormat: "pcm",
	}

	var audio []byte
	err := k.breaker.Execute(func() error {
		var callErr error
		audio, callErr = k.client.postJSONRaw(callCtx, speechPath, req)
		return callErr
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for offset := 0; offset < len(audio); offset += ttsChunkSize {
			end := offset + ttsChunkSize
			if end > len(audio) {
				end = len(audio)
			}
			select {
			case out <- audio[offset:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
