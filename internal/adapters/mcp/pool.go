package mcp

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/clara-assistant/clara/internal/domain"
)

const (
	// DefaultMaxConnections bounds the number of live server connections.
	DefaultMaxConnections = 10
	// DefaultIdleTimeout is how long an unused connection may linger.
	DefaultIdleTimeout = 5 * time.Minute
	// UnhealthyCooldown is how long a server stays quarantined after a
	// failed initialization before the pool will dial it again.
	UnhealthyCooldown = 30 * time.Second
)

// ServerConfig represents configuration for an MCP server
type ServerConfig struct {
	Name      string   `json:"name"`
	Transport string   `json:"transport"` // "stdio", "http" or "sse"
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	Env       []string `json:"env,omitempty"`
	URL       string   `json:"url,omitempty"`
	APIKey    string   `json:"api_key,omitempty"`
	// CallTimeout overrides DefaultCallTimeout for this server when
	// positive.
	CallTimeout time.Duration `json:"call_timeout,omitempty"`
}

// Pool hands out initialized clients per server, creating them lazily.
// Concurrent first requests for the same server share one initialization
// via singleflight; servers that fail to initialize are quarantined for
// UnhealthyCooldown.
type Pool struct {
	mu          sync.RWMutex
	configs     map[string]*ServerConfig
	conns       map[string]*pooledConn
	unhealthy   map[string]time.Time
	maxConns    int
	idleTimeout time.Duration

	group  singleflight.Group
	stopCh chan struct{}
	once   sync.Once
}

type pooledConn struct {
	client   *Client
	lastUsed time.Time
}

func NewPool(configs []*ServerConfig) *Pool {
	p := &Pool{
		configs:     make(map[string]*ServerConfig),
		conns:       make(map[string]*pooledConn),
		unhealthy:   make(map[string]time.Time),
		maxConns:    DefaultMaxConnections,
		idleTimeout: DefaultIdleTimeout,
		stopCh:      make(chan struct{}),
	}
	for _, cfg := range configs {
		p.configs[cfg.Name] = cfg
	}
	go p.evictLoop()
	return p
}

// Get returns an initialized client for the named server, dialing it if
// needed.
func (p *Pool) Get(ctx context.Context, serverName string) (*Client, error) {
	p.mu.RLock()
	cfg, known := p.configs[serverName]
	p.mu.RUnlock()
	if !known {
		return nil, domain.Errorf(domain.KindConfig, "%w: %s", domain.ErrServerNotFound, serverName)
	}

	if client, ok := p.lookup(serverName); ok {
		return client, nil
	}

	if until, quarantined := p.quarantinedUntil(serverName); quarantined {
		return nil, domain.Errorf(domain.KindTransport, "%w: %s (cooldown until %s)",
			domain.ErrServerUnhealthy, serverName, until.Format(time.RFC3339))
	}

	v, err, _ := p.group.Do(serverName, func() (interface{}, error) {
		// Another flight may have connected while we queued.
		if client, ok := p.lookup(serverName); ok {
			return client, nil
		}
		client, err := p.dial(ctx, cfg)
		if err != nil {
			p.markUnhealthy(serverName)
			return nil, err
		}
		p.admit(serverName, client)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Client), nil
}

// Servers returns the names of all configured servers.
func (p *Pool) Servers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.configs))
	for name := range p.configs {
		names = append(names, name)
	}
	return names
}

// Connected reports whether the named server currently has a live
// connection.
func (p *Pool) Connected(serverName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[serverName]
	return ok && conn.client.IsInitialized()
}

func (p *Pool) Close() error {
	var lastErr error
	p.once.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		for name, conn := range p.conns {
			if err := conn.client.Close(); err != nil {
				lastErr = err
			}
			delete(p.conns, name)
		}
		p.mu.Unlock()
	})
	return lastErr
}

func (p *Pool) lookup(serverName string) (*Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.conns[serverName]
	if !ok {
		return nil, false
	}
	if !conn.client.IsInitialized() {
		delete(p.conns, serverName)
		conn.client.Close()
		return nil, false
	}
	conn.lastUsed = time.Now()
	return conn.client, true
}

func (p *Pool) quarantinedUntil(serverName string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	failedAt, ok := p.unhealthy[serverName]
	if !ok {
		return time.Time{}, false
	}
	until := failedAt.Add(UnhealthyCooldown)
	if time.Now().After(until) {
		delete(p.unhealthy, serverName)
		return time.Time{}, false
	}
	return until, true
}

func (p *Pool) markUnhealthy(serverName string) {
	p.mu.Lock()
	p.unhealthy[serverName] = time.Now()
	p.mu.Unlock()
	log.Printf("[Pool] server quarantined after failed init: name=%s, cooldown=%s", serverName, UnhealthyCooldown)
}

func (p *Pool) admit(serverName string, client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// At capacity: drop the least recently used connection.
	for len(p.conns) >= p.maxConns {
		var oldestName string
		var oldest time.Time
		for name, conn := range p.conns {
			if oldestName == "" || conn.lastUsed.Before(oldest) {
				oldestName = name
				oldest = conn.lastUsed
			}
		}
		if oldestName == "" {
			break
		}
		p.conns[oldestName].client.Close()
		delete(p.conns, oldestName)
		log.Printf("[Pool] evicted connection for capacity: name=%s", oldestName)
	}

	delete(p.unhealthy, serverName)
	p.conns[serverName] = &pooledConn{client: client, lastUsed: time.Now()}
	log.Printf("[Pool] connected to MCP server: name=%s, total=%d", serverName, len(p.conns))
}

func (p *Pool) dial(ctx context.Context, cfg *ServerConfig) (*Client, error) {
	var transport Transport
	var err error

	switch cfg.Transport {
	case "stdio":
		transport, err = NewStdioTransport(cfg.Command, cfg.Args, cfg.Env)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdio transport: %w", err)
		}

	case "http", "sse":
		httpTransport, err := NewHTTPSSETransport(cfg.URL, cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP transport: %w", err)
		}
		if err := httpTransport.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect HTTP transport: %w", err)
		}
		transport = httpTransport

	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport)
	}

	client := NewClient(cfg.Name, transport)
	client.SetCallTimeout(cfg.CallTimeout)
	if err := client.Initialize(ctx); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}
	return client, nil
}

func (p *Pool) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	cutoff := time.Now().Add(-p.idleTimeout)

	p.mu.Lock()
	var evicted []*Client
	for name, conn := range p.conns {
		if conn.lastUsed.Before(cutoff) {
			evicted = append(evicted, conn.client)
			delete(p.conns, name)
			log.Printf("[Pool] evicted idle connection: name=%s, idle>%s", name, p.idleTimeout)
		}
	}
	p.mu.Unlock()

	for _, client := range evicted {
		client.Close()
	}
}
