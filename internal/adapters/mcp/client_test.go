package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// echoTransport answers every request according to the respond func, or
// stays silent when respond is nil.
type echoTransport struct {
	mu      sync.Mutex
	sent    []*JSONRPCRequest
	out     chan Message
	respond func(req *JSONRPCRequest) *JSONRPCResponse
}

func newEchoTransport(respond func(req *JSONRPCRequest) *JSONRPCResponse) *echoTransport {
	return &echoTransport{out: make(chan Message, 10), respond: respond}
}

func (t *echoTransport) Send(ctx context.Context, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err != nil || req.ID == nil {
		return nil // notification
	}
	t.mu.Lock()
	t.sent = append(t.sent, &req)
	t.mu.Unlock()

	if t.respond != nil {
		if resp := t.respond(&req); resp != nil {
			payload, _ := json.Marshal(resp)
			t.out <- Message{Data: payload}
		}
	}
	return nil
}

func (t *echoTransport) Receive() <-chan Message { return t.out }

func (t *echoTransport) Close() error { return nil }

func (t *echoTransport) IsConnected() bool { return true }

func okResponse(req *JSONRPCRequest, result any) *JSONRPCResponse {
	resp, _ := NewJSONRPCResponse(req.ID, result)
	return resp
}

func TestClient_Initialize(t *testing.T) {
	transport := newEchoTransport(func(req *JSONRPCRequest) *JSONRPCResponse {
		return okResponse(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "calendar", Version: "1.0"},
		})
	})
	client := NewClient("calendar", transport)

	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if !client.IsInitialized() {
		t.Error("client should be initialized")
	}
	if info := client.GetServerInfo(); info == nil || info.Name != "calendar" {
		t.Errorf("unexpected server info %+v", info)
	}
}

func TestClient_DefaultCallTimeoutIs20s(t *testing.T) {
	client := NewClient("calendar", newEchoTransport(nil))
	if client.callTimeout != 20*time.Second {
		t.Errorf("default call timeout = %s, want 20s", client.callTimeout)
	}
}

func TestClient_CallTimesOutAtConfiguredDeadline(t *testing.T) {
	// The transport swallows the request and never answers.
	client := NewClient("calendar", newEchoTransport(nil))
	client.SetCallTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := client.call(context.Background(), MethodPing, map[string]any{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "request timeout") {
		t.Errorf("unexpected error %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("call took %s, should respect the configured deadline", elapsed)
	}
}

func TestClient_SetCallTimeoutIgnoresNonPositive(t *testing.T) {
	client := NewClient("calendar", newEchoTransport(nil))
	client.SetCallTimeout(0)
	client.SetCallTimeout(-time.Second)
	if client.callTimeout != DefaultCallTimeout {
		t.Errorf("timeout = %s, want default", client.callTimeout)
	}
}
