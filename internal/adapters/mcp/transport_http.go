package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/clara-assistant/clara/internal/domain"
)

const httpClientTimeout = 30 * time.Second

// AllowedURLHosts restricts outbound MCP connections when non-empty.
// With an empty list, validation falls back to blocking private and
// internal addresses.
var AllowedURLHosts []string

// HTTPSSETransport speaks MCP over HTTP: requests go out as POSTs to
// /message, responses and notifications stream back over an SSE
// connection to /sse. The server may hand out a session ID on the
// first POST, which is echoed on every request after that.
type HTTPSSETransport struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	receiveCh chan Message
	closeCh   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	connected bool
	sessionID string
}

// isPrivateIP reports whether an address must never be dialled from the
// server side: loopback, RFC 1918, link-local, unspecified or
// multicast. IPv4-mapped IPv6 addresses are unwrapped before checking
// so ::ffff:10.0.0.1 is treated as 10.0.0.1.
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast()
}

// internalHostnames are rejected outright, before DNS. Covers cloud
// metadata endpoints and in-cluster service names.
var internalHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"local",
	"internal",
	"metadata",
	"metadata.google.internal",
	"instance-data",
	"169.254.169.254",
	"metadata.azure.com",
	"kubernetes",
	"kubernetes.default",
	"kubernetes.default.svc",
	"kubernetes.default.svc.cluster.local",
}

// validateURL rejects URLs that would let a configured MCP server reach
// internal infrastructure: non-HTTP schemes, known internal hostnames,
// and hostnames resolving to private addresses. When AllowedURLHosts is
// set it acts as a strict allowlist instead.
func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.Errorf(domain.KindConfig, "invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return domain.Errorf(domain.KindConfig, "unsupported URL scheme: %s (only http and https are allowed)", parsed.Scheme)
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return domain.Errorf(domain.KindConfig, "URL must have a hostname")
	}

	if len(AllowedURLHosts) > 0 {
		for _, allowed := range AllowedURLHosts {
			if strings.EqualFold(hostname, allowed) {
				return nil
			}
		}
		return domain.Errorf(domain.KindConfig, "hostname %q is not in the allowed hosts list", hostname)
	}

	lower := strings.ToLower(hostname)
	for _, internal := range internalHostnames {
		if lower == internal || strings.HasSuffix(lower, "."+internal) {
			return domain.Errorf(domain.KindConfig, "hostname %q is not allowed: internal/metadata hostname", hostname)
		}
	}

	// An unresolvable hostname is rejected rather than dialled blind.
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return domain.Errorf(domain.KindTransport, "cannot resolve hostname %q: %w", hostname, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return domain.Errorf(domain.KindConfig, "hostname %q resolves to private/internal IP address %s", hostname, ip)
		}
	}
	return nil
}

func NewHTTPSSETransport(baseURL, apiKey string) (*HTTPSSETransport, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if err := validateURL(baseURL); err != nil {
		return nil, fmt.Errorf("URL validation failed: %w", err)
	}

	return &HTTPSSETransport{
		baseURL:   baseURL,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: httpClientTimeout},
		receiveCh: make(chan Message, 10),
		closeCh:   make(chan struct{}),
	}, nil
}

// Connect opens the SSE stream and starts the reader goroutine.
func (t *HTTPSSETransport) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/sse", nil)
	if err != nil {
		return fmt.Errorf("failed to create SSE request: %w", err)
	}
	t.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.Errorf(domain.KindTransport, "failed to connect to SSE endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return domain.Errorf(domain.KindTransport, "SSE connection failed: %s - %s", resp.Status, string(body))
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()

	go t.readSSE(resp.Body)
	return nil
}

// Send posts one JSON-RPC message. The reply arrives over the SSE
// stream, not in this response.
func (t *HTTPSSETransport) Send(ctx context.Context, message any) error {
	if !t.IsConnected() {
		return domain.Errorf(domain.KindTransport, "transport not connected")
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/message", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t.setHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return domain.Errorf(domain.KindTransport, "failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return domain.Errorf(domain.KindTransport, "server error: %s - %s", resp.Status, string(body))
	}

	if sessionID := resp.Header.Get("X-Session-ID"); sessionID != "" {
		t.mu.Lock()
		t.sessionID = sessionID
		t.mu.Unlock()
	}
	return nil
}

func (t *HTTPSSETransport) setHeaders(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set("X-Session-ID", t.sessionID)
	}
	t.mu.RUnlock()
}

func (t *HTTPSSETransport) Receive() <-chan Message {
	return t.receiveCh
}

func (t *HTTPSSETransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closeCh)
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		close(t.receiveCh)
	})
	return nil
}

func (t *HTTPSSETransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// readSSE parses the event stream. Only data fields matter for MCP;
// each blank-line-terminated event carries one JSON-RPC message.
func (t *HTTPSSETransport) readSSE(body io.ReadCloser) {
	defer body.Close()

	reader := bufio.NewReader(body)
	var data []string

	for {
		select {
		case <-t.closeCh:
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				select {
				case t.receiveCh <- Message{Error: domain.Errorf(domain.KindTransport, "SSE read error: %w", err)}:
				case <-t.closeCh:
				}
			}
			t.mu.Lock()
			t.connected = false
			t.mu.Unlock()
			return
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if len(data) > 0 {
				t.deliver(strings.Join(data, "\n"))
				data = nil
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(line[5:]))
		}
		// event:, id: and retry: fields are ignored.
	}
}

func (t *HTTPSSETransport) deliver(payload string) {
	select {
	case t.receiveCh <- Message{Data: []byte(payload)}:
	case <-t.closeCh:
	}
}
