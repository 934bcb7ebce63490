package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clara-assistant/clara/internal/domain"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "clara"
	clientVersion   = "0.1.0"

	// DefaultCallTimeout bounds one JSON-RPC round trip. Callers with a
	// slower server can raise it per connection via ServerConfig.
	DefaultCallTimeout = 20 * time.Second
)

// Client multiplexes JSON-RPC calls over one transport. Requests carry
// monotonically increasing IDs; the receive loop routes each response
// to the waiting caller.
type Client struct {
	name         string
	transport    Transport
	callTimeout  time.Duration
	mu           sync.RWMutex
	nextID       atomic.Int64
	pendingCalls map[any]chan *JSONRPCResponse
	initialized  bool
	serverInfo   *ServerInfo
	capabilities *ServerCapabilities
	closeCh      chan struct{}
	closeOnce    sync.Once
}

func NewClient(name string, transport Transport) *Client {
	return &Client{
		name:         name,
		transport:    transport,
		callTimeout:  DefaultCallTimeout,
		pendingCalls: make(map[any]chan *JSONRPCResponse),
		closeCh:      make(chan struct{}),
	}
}

// SetCallTimeout overrides the per-call deadline. Zero or negative
// values keep the default.
func (c *Client) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.callTimeout = d
	c.mu.Unlock()
}

// Initialize performs the MCP handshake and starts the receive loop.
func (c *Client) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    ClientCapabilities{Experimental: map[string]any{}},
		"clientInfo":      ClientInfo{Name: clientName, Version: clientVersion},
	}

	go c.receiveLoop()

	result, err := c.call(ctx, MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		return fmt.Errorf("failed to unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverInfo = &initResult.ServerInfo
	c.capabilities = &initResult.Capabilities
	c.mu.Unlock()

	if err := c.notify(ctx, MethodInitialized, nil); err != nil {
		return fmt.Errorf("failed to send initialized notification: %w", err)
	}
	return nil
}

// ListTools returns the server's full tool catalogue, following
// pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	if !c.IsInitialized() {
		return nil, domain.Errorf(domain.KindTransport, "client not initialized")
	}

	var tools []Tool
	var cursor *string
	for {
		params := map[string]any{}
		if cursor != nil {
			params["cursor"] = *cursor
		}

		result, err := c.call(ctx, MethodToolsList, params)
		if err != nil {
			return nil, fmt.Errorf("tools/list failed: %w", err)
		}

		var page ToolsListResult
		if err := json.Unmarshal(result, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tools/list result: %w", err)
		}
		tools = append(tools, page.Tools...)

		if page.NextCursor == nil {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolsCallResult, error) {
	if !c.IsInitialized() {
		return nil, domain.Errorf(domain.KindTransport, "client not initialized")
	}

	params := map[string]any{"name": name}
	if arguments != nil {
		params["arguments"] = arguments
	}

	result, err := c.call(ctx, MethodToolsCall, params)
	if err != nil {
		return nil, fmt.Errorf("tools/call failed: %w", err)
	}

	var callResult ToolsCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tools/call result: %w", err)
	}
	return &callResult, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, MethodPing, map[string]any{})
	return err
}

func (c *Client) GetServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *Client) GetCapabilities() *ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.mu.Lock()
		for _, ch := range c.pendingCalls {
			close(ch)
		}
		c.pendingCalls = make(map[any]chan *JSONRPCResponse)
		c.initialized = false
		c.mu.Unlock()

		if c.transport != nil {
			err = c.transport.Close()
		}
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	respCh := make(chan *JSONRPCResponse, 1)
	c.mu.Lock()
	c.pendingCalls[id] = respCh
	timeout := c.callTimeout
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingCalls, id)
		c.mu.Unlock()
	}()

	if err := c.transport.Send(ctx, NewJSONRPCRequest(id, method, params)); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-respCh:
		if !ok {
			return nil, domain.Errorf(domain.KindTransport, "response channel closed")
		}
		if resp.Error != nil {
			return nil, domain.Errorf(domain.KindApplication, "JSON-RPC error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-time.After(timeout):
		return nil, domain.Errorf(domain.KindTransport, "request timeout after %s: %s", timeout, method)
	}
}

func (c *Client) notify(ctx context.Context, method string, params map[string]any) error {
	return c.transport.Send(ctx, NewJSONRPCNotification(method, params))
}

func (c *Client) receiveLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		case msg := <-c.transport.Receive():
			if msg.Error != nil {
				continue
			}
			c.handleMessage(msg.Data)
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil {
		c.handleResponse(&resp)
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal(data, &notif); err == nil {
		c.handleNotification(&notif)
	}
}

func (c *Client) handleResponse(resp *JSONRPCResponse) {
	// Responses come back with float64 IDs after unmarshaling; requests
	// were keyed by int64.
	id := resp.ID
	if f, ok := id.(float64); ok {
		id = int64(f)
	}

	c.mu.RLock()
	ch, exists := c.pendingCalls[id]
	c.mu.RUnlock()
	if !exists {
		return
	}

	select {
	case ch <- resp:
	default:
	}
}

func (c *Client) handleNotification(notif *JSONRPCNotification) {
	switch notif.Method {
	case MethodProgress, MethodCancelled:
		// Progress and cancellation notifications are accepted and
		// dropped; no caller consumes them yet.
	}
}
