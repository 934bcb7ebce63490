package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWhisper_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transcriptionsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("bad multipart request: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("response_format = %q", got)
		}
		if got := r.FormValue("language"); got != "es" {
			t.Errorf("language = %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing audio file: %v", err)
		}
		file.Close()

		json.NewEncoder(w).Encode(whisperResponse{Text: "  qué tengo mañana  ", Language: "es"})
	}))
	defer server.Close()

	w := NewWhisper(server.URL, "whisper-1")
	text, err := w.Transcribe(context.Background(), []byte("audio-bytes"), "es")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "qué tengo mañana" {
		t.Errorf("transcript not trimmed: %q", text)
	}
}

func TestWhisper_EmptyAudio(t *testing.T) {
	w := NewWhisper("http://localhost:1", "")
	if _, err := w.Transcribe(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestKokoro_SynthesizeChunks(t *testing.T) {
	audio := make([]byte, ttsChunkSize*2+100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != speechPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.ResponseFormat != "pcm" {
			t.Errorf("response_format = %q", req.ResponseFormat)
		}
		if req.Voice == "" || req.Model == "" {
			t.Errorf("missing voice/model in %+v", req)
		}
		w.Write(audio)
	}))
	defer server.Close()

	k := NewKokoro(server.URL, "", "")
	chunks, err := k.Synthesize(context.Background(), "hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var total, count int
	for chunk := range chunks {
		total += len(chunk)
		count++
	}
	if total != len(audio) {
		t.Errorf("got %d bytes, want %d", total, len(audio))
	}
	if count != 3 {
		t.Errorf("expected 3 chunks, got %d", count)
	}
}

func TestKokoro_CancelStopsStream(t *testing.T) {
	audio := make([]byte, ttsChunkSize*50)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(audio)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	k := NewKokoro(server.URL, "", "")
	chunks, err := k.Synthesize(ctx, "texto largo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-chunks
	cancel()

	// The channel must close shortly after cancellation.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-chunks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not stop after cancel")
		}
	}
}

func TestKokoro_EmptyText(t *testing.T) {
	k := NewKokoro("http://localhost:1", "", "")
	if _, err := k.Synthesize(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestKokoro_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusBadRequest)
	}))
	defer server.Close()

	k := NewKokoro(server.URL, "", "")
	if _, err := k.Synthesize(context.Background(), "hola"); err == nil {
		t.Fatal("expected error")
	} else if !strings.Contains(err.Error(), "synthesis failed") {
		t.Errorf("unexpected error %v", err)
	}
}
