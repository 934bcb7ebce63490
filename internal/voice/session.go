package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clara-assistant/clara/internal/adapters/id"
	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

const (
	// ttsFirstChunkDeadline is how long the session waits for the first
	// audio chunk before falling back to a text-only reply.
	ttsFirstChunkDeadline = 2 * time.Second
	// maxUtteranceBytes caps buffered audio per utterance (1 minute of
	// 16kHz mono PCM16).
	maxUtteranceBytes = 16000 * 2 * 60
	readLimit         = 1 << 20
)

// State is the session's position in the turn cycle.
type State int32

const (
	StateIdle State = iota
	StateTranscribing
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTranscribing:
		return "transcribing"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// AgentRunner processes one voice utterance as a full agent request,
// reporting orchestration progress through onEvent.
type AgentRunner interface {
	RunStreaming(ctx context.Context, query string, history []models.ChatTurn, onEvent ports.AgentEventFunc) (*models.AgentState, error)
}

// Session drives one websocket voice conversation. Inbound binary
// frames accumulate into the current utterance; audio_end triggers the
// transcribe-think-speak cycle. A new utterance or an interrupt frame
// during playback cancels it (barge-in).
type Session struct {
	ID string

	conn        *websocket.Conn
	transcriber ports.Transcriber
	synthesizer ports.Synthesizer
	runner      AgentRunner
	metrics     ports.MetricsRecorder
	language    string

	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	turn          uint64
	cancelCurrent context.CancelFunc
	history       []models.ChatTurn

	audioBuf bytes.Buffer
	wg       sync.WaitGroup
}

func NewSession(conn *websocket.Conn, transcriber ports.Transcriber, synthesizer ports.Synthesizer, runner AgentRunner, metrics ports.MetricsRecorder, language string) *Session {
	return &Session{
		ID:          id.New().GenerateVoiceSessionID(),
		conn:        conn,
		transcriber: transcriber,
		synthesizer: synthesizer,
		runner:      runner,
		metrics:     metrics,
		language:    language,
	}
}

// Run reads frames until the connection closes. It blocks the caller;
// utterance processing happens on a per-turn goroutine.
func (s *Session) Run(ctx context.Context) {
	s.conn.SetReadLimit(readLimit)
	s.sendEvent(&ServerEvent{Type: EventBackendReady, SessionID: s.ID})
	log.Printf("[Session.Run] backend_ready: session_id=%s", s.ID)

	defer func() {
		s.interrupt()
		s.wg.Wait()
		s.conn.Close()
		log.Printf("[Session.Run] client_disconnected: session_id=%s", s.ID)
	}()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Session.Run] read failed: session_id=%s, error=%v", s.ID, err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.appendAudio(data)
		case websocket.TextMessage:
			var frame ClientFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				s.sendEvent(&ServerEvent{Type: EventError, Error: "malformed frame"})
				continue
			}
			s.handleFrame(ctx, frame)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame ClientFrame) {
	switch frame.Type {
	case FrameAudioEnd:
		audio := s.takeAudio()
		s.startTurn(ctx, func(turnCtx context.Context, turn uint64) {
			s.processUtterance(turnCtx, turn, audio)
		})
	case FrameText:
		s.startTurn(ctx, func(turnCtx context.Context, turn uint64) {
			s.processText(turnCtx, turn, frame.Content, time.Now())
		})
	case FrameInterrupt:
		log.Printf("[Session.handleFrame] interrupt requested: session_id=%s", s.ID)
		s.interrupt()
	case FrameCancel:
		log.Printf("[Session.handleFrame] cancel requested: session_id=%s, reason=%q", s.ID, frame.Reason)
		s.interrupt()
	default:
		s.sendEvent(&ServerEvent{Type: EventError, Error: "unknown frame type: " + frame.Type})
	}
}

func (s *Session) appendAudio(data []byte) {
	// Speaking into a playing response is a barge-in: stop the playback
	// and start collecting the new utterance.
	if s.currentState() == StateSpeaking {
		s.interrupt()
	}
	if s.audioBuf.Len()+len(data) > maxUtteranceBytes {
		return
	}
	s.audioBuf.Write(data)
}

func (s *Session) takeAudio() []byte {
	audio := make([]byte, s.audioBuf.Len())
	copy(audio, s.audioBuf.Bytes())
	s.audioBuf.Reset()
	return audio
}

// startTurn admits one turn at a time. Turns rejected while another is
// transcribing or thinking get backend_busy; a turn during playback
// barge-ins instead.
func (s *Session) startTurn(ctx context.Context, fn func(context.Context, uint64)) {
	s.mu.Lock()
	switch s.state {
	case StateSpeaking:
		if s.cancelCurrent != nil {
			s.cancelCurrent()
		}
	case StateTranscribing, StateThinking:
		state := s.state
		s.mu.Unlock()
		s.sendEvent(&ServerEvent{Type: EventBackendBusy, SessionID: s.ID})
		log.Printf("[Session.startTurn] backend_busy: session_id=%s, state=%s", s.ID, state)
		return
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.turn++
	turn := s.turn
	s.state = StateTranscribing
	s.cancelCurrent = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.setState(turn, StateIdle)
		fn(turnCtx, turn)
	}()
}

func (s *Session) processUtterance(ctx context.Context, turn uint64, audio []byte) {
	start := time.Now()

	s.sendEvent(&ServerEvent{Type: EventSTTStarted, SessionID: s.ID})
	log.Printf("[Session.processUtterance] stt_started: session_id=%s, bytes=%d", s.ID, len(audio))

	sttStart := time.Now()
	transcript, err := s.transcriber.Transcribe(ctx, audio, s.language)
	sttMs := time.Since(sttStart).Milliseconds()
	s.recordPhase("stt", sttMs)

	if err != nil {
		log.Printf("[Session.processUtterance] stt failed: session_id=%s, error=%v", s.ID, err)
		s.sendEvent(&ServerEvent{Type: EventError, Error: "transcription failed"})
		return
	}
	s.sendEvent(&ServerEvent{Type: EventSTTCompleted, SessionID: s.ID, Text: transcript})
	log.Printf("[Session.processUtterance] stt_completed: session_id=%s, duration=%dms, text=%q", s.ID, sttMs, transcript)

	if !Sensible(transcript) {
		s.sendEvent(&ServerEvent{Type: EventMessageNoSense, SessionID: s.ID})
		log.Printf("[Session.processUtterance] message_no_sense: session_id=%s", s.ID)
		return
	}

	s.processText(ctx, turn, transcript, start)
}

// processText runs the agent over a user turn and speaks the answer.
func (s *Session) processText(ctx context.Context, turn uint64, text string, start time.Time) {
	s.setState(turn, StateThinking)

	agentStart := time.Now()
	// Orchestrator progress events go straight to the client with their
	// agent_ names intact.
	forward := func(name string, payload map[string]any) {
		s.sendEvent(&ServerEvent{Type: name, SessionID: s.ID, Data: payload})
	}
	state, err := s.runner.RunStreaming(ctx, text, s.snapshotHistory(), forward)
	agentMs := time.Since(agentStart).Milliseconds()
	s.recordPhase("agent", agentMs)

	if err != nil {
		log.Printf("[Session.processText] agent failed: session_id=%s, error=%v", s.ID, err)
		s.sendEvent(&ServerEvent{Type: EventError, Error: "request failed"})
		return
	}
	s.appendHistory(text, state.Response)
	s.sendEvent(&ServerEvent{Type: EventAgentResponse, SessionID: s.ID, Text: state.Response})

	s.setState(turn, StateSpeaking)
	ttsStart := time.Now()
	spoke := s.speak(ctx, state.Response)
	ttsMs := time.Since(ttsStart).Milliseconds()
	s.recordPhase("tts", ttsMs)

	totalMs := time.Since(start).Milliseconds()
	s.recordPhase("end_to_end", totalMs)
	s.sendEvent(&ServerEvent{
		Type:      EventRequestCompleted,
		SessionID: s.ID,
		Durations: map[string]int64{
			"agent_ms":      agentMs,
			"tts_ms":        ttsMs,
			"end_to_end_ms": totalMs,
		},
	})
	log.Printf("[Session.processText] request_completed: session_id=%s, agent=%dms, tts=%dms, total=%dms, spoke=%t",
		s.ID, agentMs, ttsMs, totalMs, spoke)
	s.sendEvent(&ServerEvent{Type: EventComplete, SessionID: s.ID})
}

// speak streams synthesized audio, reporting whether any audio went
// out. A first chunk slower than the deadline downgrades the turn to
// text-only rather than leaving the user in silence; the client already
// holds the response text, so tts_error carries fallback_available.
func (s *Session) speak(ctx context.Context, text string) bool {
	if s.synthesizer == nil {
		return false
	}
	s.sendEvent(&ServerEvent{Type: EventTTSStarted, SessionID: s.ID})
	chunks, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		log.Printf("[Session.speak] synthesis failed: session_id=%s, error=%v", s.ID, err)
		s.sendEvent(&ServerEvent{Type: EventTTSError, SessionID: s.ID, Error: "synthesis failed", Fallback: true})
		return false
	}

	deadline := time.NewTimer(ttsFirstChunkDeadline)
	defer deadline.Stop()

	select {
	case first, ok := <-chunks:
		if !ok {
			return false
		}
		if err := s.sendBinary(first); err != nil {
			return false
		}
		s.sendEvent(&ServerEvent{Type: EventTTSFirstChunkSent, SessionID: s.ID})
		log.Printf("[Session.speak] tts_first_chunk_sent: session_id=%s", s.ID)
	case <-deadline.C:
		log.Printf("[Session.speak] first chunk deadline exceeded: session_id=%s", s.ID)
		s.sendEvent(&ServerEvent{Type: EventTTSError, SessionID: s.ID, Error: "first chunk deadline exceeded", Fallback: true})
		return false
	case <-ctx.Done():
		return false
	}

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				s.sendEvent(&ServerEvent{Type: EventTTSCompleted, SessionID: s.ID})
				return true
			}
			if err := s.sendBinary(chunk); err != nil {
				return false
			}
		case <-ctx.Done():
			log.Printf("[Session.speak] playback interrupted: session_id=%s", s.ID)
			return true
		}
	}
}

// interrupt cancels the in-flight turn, if any.
func (s *Session) interrupt() {
	s.mu.Lock()
	cancel := s.cancelCurrent
	s.cancelCurrent = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState only applies when turn is still the live one; a cancelled
// turn must not clobber its successor's state.
func (s *Session) setState(turn uint64, state State) {
	s.mu.Lock()
	if s.turn == turn {
		s.state = state
	}
	s.mu.Unlock()
}

func (s *Session) snapshotHistory() []models.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]models.ChatTurn, len(s.history))
	copy(history, s.history)
	return history
}

func (s *Session) appendHistory(userText, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		models.ChatTurn{Role: "user", Content: userText},
		models.ChatTurn{Role: "assistant", Content: response},
	)
	// Keep the last 10 turns
	if len(s.history) > 20 {
		s.history = s.history[len(s.history)-20:]
	}
}

func (s *Session) recordPhase(phase string, ms int64) {
	if s.metrics != nil {
		s.metrics.RecordVoicePhase(phase, float64(ms))
	}
}

func (s *Session) sendEvent(event *ServerEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[Session.sendEvent] write failed: session_id=%s, error=%v", s.ID, err)
	}
}

func (s *Session) sendBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}
