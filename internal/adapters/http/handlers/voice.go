package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/clara-assistant/clara/internal/ports"
	"github.com/clara-assistant/clara/internal/voice"
)

// VoiceHandler upgrades to a websocket and hands the connection to a
// voice session. One session per connection.
type VoiceHandler struct {
	transcriber ports.Transcriber
	synthesizer ports.Synthesizer
	runner      voice.AgentRunner
	metrics     ports.MetricsRecorder
	upgrader    websocket.Upgrader
}

func NewVoiceHandler(transcriber ports.Transcriber, synthesizer ports.Synthesizer, runner voice.AgentRunner, metrics ports.MetricsRecorder, allowedOrigins []string) *VoiceHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}
	return &VoiceHandler{
		transcriber: transcriber,
		synthesizer: synthesizer,
		runner:      runner,
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin header.
				return origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

func (h *VoiceHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		log.Printf("[VoiceHandler.Serve] upgrade failed: %v", err)
		return
	}

	language := r.URL.Query().Get("language")
	if language == "" {
		language = "es"
	}

	session := voice.NewSession(conn, h.transcriber, h.synthesizer, h.runner, h.metrics, language)
	log.Printf("[VoiceHandler.Serve] session started: session_id=%s, language=%s", session.ID, language)
	session.Run(r.Context())
}
