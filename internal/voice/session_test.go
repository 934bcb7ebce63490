package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clara-assistant/clara/internal/domain/models"
	"github.com/clara-assistant/clara/internal/ports"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	chunks int
	err    error
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for i := 0; i < f.chunks; i++ {
			select {
			case out <- make([]byte, 320):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fakeRunner struct {
	response string
	err      error
	block    chan struct{}
	mu       sync.Mutex
	queries  []string
}

func (f *fakeRunner) RunStreaming(ctx context.Context, query string, history []models.ChatTurn, onEvent ports.AgentEventFunc) (*models.AgentState, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if onEvent != nil {
		onEvent("agent_processing_started", map[string]any{"request_id": "req_test"})
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if onEvent != nil {
		onEvent("agent_response_ready", map[string]any{"iterations": 1})
	}
	return &models.AgentState{Response: f.response}, nil
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialSession spins up a session behind a test server and returns the
// client side of the socket.
func dialSession(t *testing.T, transcriber *fakeTranscriber, synth *fakeSynthesizer, runner *fakeRunner) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		session := NewSession(conn, transcriber, synth, runner, nil, "es")
		session.Run(r.Context())
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvents collects text events until the wanted type arrives or the
// deadline passes. Binary frames count separately.
func readEvents(t *testing.T, conn *websocket.Conn, until string) ([]ServerEvent, int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var events []ServerEvent
	var binary int
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed after %v (waiting for %s): %v", events, until, err)
		}
		if msgType == websocket.BinaryMessage {
			binary++
			continue
		}
		var event ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("bad event %s: %v", data, err)
		}
		events = append(events, event)
		if event.Type == until {
			return events, binary
		}
	}
}

func eventTypes(events []ServerEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestSession_VoiceTurn(t *testing.T) {
	transcriber := &fakeTranscriber{text: "qué tengo mañana"}
	synth := &fakeSynthesizer{chunks: 3}
	runner := &fakeRunner{response: "Tienes dentista a las 10."}
	conn := dialSession(t, transcriber, synth, runner)

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 640)); err != nil {
		t.Fatalf("write audio failed: %v", err)
	}
	if err := conn.WriteJSON(ClientFrame{Type: FrameAudioEnd}); err != nil {
		t.Fatalf("write audio_end failed: %v", err)
	}

	events, binary := readEvents(t, conn, EventComplete)
	types := eventTypes(events)

	want := []string{
		EventBackendReady, EventSTTStarted, EventSTTCompleted,
		"agent_processing_started", "agent_response_ready",
		EventAgentResponse, EventTTSStarted, EventTTSFirstChunkSent,
		EventTTSCompleted, EventRequestCompleted, EventComplete,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
	if binary != 3 {
		t.Errorf("expected 3 audio chunks, got %d", binary)
	}

	for _, e := range events {
		if e.Type == EventSTTCompleted && e.Text != "qué tengo mañana" {
			t.Errorf("stt_completed text = %q", e.Text)
		}
		if e.Type == EventRequestCompleted && e.Durations["end_to_end_ms"] < 0 {
			t.Errorf("missing durations in %+v", e)
		}
	}
}

func TestSession_NonsenseFiltered(t *testing.T) {
	transcriber := &fakeTranscriber{text: "eh"}
	runner := &fakeRunner{response: "should not run"}
	conn := dialSession(t, transcriber, &fakeSynthesizer{}, runner)

	conn.WriteMessage(websocket.BinaryMessage, make([]byte, 64))
	conn.WriteJSON(ClientFrame{Type: FrameAudioEnd})

	events, _ := readEvents(t, conn, EventMessageNoSense)
	types := eventTypes(events)
	if types[len(types)-1] != EventMessageNoSense {
		t.Fatalf("expected message_no_sense, got %v", types)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.queries) != 0 {
		t.Errorf("agent should not run for nonsense, got %v", runner.queries)
	}
}

func TestSession_BusyRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{response: "listo", block: release}
	conn := dialSession(t, &fakeTranscriber{}, &fakeSynthesizer{}, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "primera petición"})
	// Give the first turn time to reach the thinking state.
	time.Sleep(100 * time.Millisecond)
	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "segunda petición"})

	events, _ := readEvents(t, conn, EventBackendBusy)
	if eventTypes(events)[len(events)-1] != EventBackendBusy {
		t.Fatalf("expected backend_busy, got %v", eventTypes(events))
	}
	close(release)

	events, _ = readEvents(t, conn, EventComplete)
	if eventTypes(events)[len(events)-1] != EventComplete {
		t.Fatalf("first turn should still complete, got %v", eventTypes(events))
	}
}

func TestSession_TextTurnSkipsSTT(t *testing.T) {
	runner := &fakeRunner{response: "hecho"}
	conn := dialSession(t, &fakeTranscriber{}, &fakeSynthesizer{chunks: 1}, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "agenda una reunión"})

	events, _ := readEvents(t, conn, EventComplete)
	for _, e := range events {
		if e.Type == EventSTTStarted {
			t.Error("text turns must not run STT")
		}
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.queries) != 1 || runner.queries[0] != "agenda una reunión" {
		t.Errorf("unexpected queries %v", runner.queries)
	}
}

func TestSession_CancelFrameStopsTurn(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	runner := &fakeRunner{response: "tarde", block: release}
	conn := dialSession(t, &fakeTranscriber{}, &fakeSynthesizer{}, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "busca los correos de ayer"})
	// Let the turn reach the runner before cancelling it.
	time.Sleep(100 * time.Millisecond)
	conn.WriteJSON(ClientFrame{Type: FrameCancel, Reason: "user_changed_mind"})

	events, _ := readEvents(t, conn, EventError)
	types := eventTypes(events)
	if types[len(types)-1] != EventError {
		t.Fatalf("expected error after cancel, got %v", types)
	}
	for _, typ := range types {
		if typ == EventAgentResponse {
			t.Fatal("cancelled turn must not produce a response")
		}
	}
}

func TestSession_SynthesisFailureReportsFallback(t *testing.T) {
	runner := &fakeRunner{response: "Tu cita es a las 10."}
	synth := &fakeSynthesizer{err: context.DeadlineExceeded}
	conn := dialSession(t, &fakeTranscriber{}, synth, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "cuándo es mi cita"})

	events, _ := readEvents(t, conn, EventComplete)
	var sawError bool
	for _, e := range events {
		if e.Type == EventTTSError {
			sawError = true
			if !e.Fallback {
				t.Error("tts_error must advertise the text fallback")
			}
		}
		if e.Type == EventTTSCompleted {
			t.Error("failed synthesis must not report completion")
		}
	}
	if !sawError {
		t.Fatalf("expected tts_error, got %v", eventTypes(events))
	}
}

func TestSession_EventsCarryTimestamps(t *testing.T) {
	runner := &fakeRunner{response: "hecho"}
	conn := dialSession(t, &fakeTranscriber{}, &fakeSynthesizer{}, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "apunta una nota"})

	events, _ := readEvents(t, conn, EventComplete)
	for _, e := range events {
		if e.Timestamp == "" {
			t.Errorf("event %s missing timestamp", e.Type)
		}
		if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
			t.Errorf("event %s timestamp %q not RFC3339: %v", e.Type, e.Timestamp, err)
		}
	}
}

func TestSession_AgentFailureSendsError(t *testing.T) {
	runner := &fakeRunner{err: context.DeadlineExceeded}
	conn := dialSession(t, &fakeTranscriber{}, &fakeSynthesizer{}, runner)

	conn.WriteJSON(ClientFrame{Type: FrameText, Content: "hola clara"})

	events, _ := readEvents(t, conn, EventError)
	last := events[len(events)-1]
	if last.Error == "" {
		t.Errorf("expected error detail, got %+v", last)
	}
}
