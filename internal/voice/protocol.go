package voice

// Client-to-server frame types. Audio itself travels as binary frames;
// everything else is a small JSON text frame.
const (
	FrameAudioEnd  = "audio_end"
	FrameText      = "text"
	FrameInterrupt = "interrupt"
	FrameCancel    = "cancel"
)

// Server-to-client event types, emitted in request order. Agent
// progress events forwarded from the orchestrator keep their "agent_"
// names and are not listed here.
const (
	EventBackendReady      = "backend_ready"
	EventBackendBusy       = "backend_busy"
	EventSTTStarted        = "stt_started"
	EventSTTCompleted      = "stt_completed"
	EventMessageNoSense    = "message_no_sense"
	EventAgentResponse     = "agent_response"
	EventTTSStarted        = "tts_started"
	EventTTSFirstChunkSent = "tts_first_chunk_sent"
	EventTTSCompleted      = "tts_completed"
	EventTTSError          = "tts_error"
	EventRequestCompleted  = "request_completed"
	EventComplete          = "complete"
	EventError             = "error"
)

// ClientFrame is a decoded inbound text frame.
type ClientFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ServerEvent is one outbound text frame.
type ServerEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Text      string           `json:"text,omitempty"`
	Error     string           `json:"error,omitempty"`
	Data      map[string]any   `json:"data,omitempty"`
	Fallback  bool             `json:"fallback_available,omitempty"`
	Durations map[string]int64 `json:"durations,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
}
