package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for Clara
type Config struct {
	Version   string          `json:"version"`
	LLM       LLMConfig       `json:"llm"`
	STT       STTConfig       `json:"stt"`
	TTS       TTSConfig       `json:"tts"`
	Embedding EmbeddingConfig `json:"embedding"`
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	MCP       MCPConfig       `json:"mcp"`
	Mail      MailConfig      `json:"mail"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Calendly  CalendlyConfig  `json:"calendly"`
	Policy    PolicyConfig    `json:"policy"`
	RAG       RAGConfig       `json:"rag"`
	// MockMode routes every tool call to deterministic stub responses,
	// for demos and offline development.
	MockMode bool `json:"mock_mode"`
}

// LLMConfig holds LLM API configuration (vLLM/LiteLLM)
type LLMConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// STTConfig holds speech recognition configuration (Whisper via speaches)
type STTConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"` // e.g., "whisper-large-v3"
}

// TTSConfig holds text-to-speech configuration (Kokoro via speaches)
type TTSConfig struct {
	URL   string `json:"url"`
	Model string `json:"model"` // e.g., "kokoro"
	Voice string `json:"voice"` // e.g., "ef_dora"
}

// EmbeddingConfig holds embedding API configuration
type EmbeddingConfig struct {
	URL           string `json:"url"`
	APIKey        string `json:"api_key"`
	Model         string `json:"model"`
	Dimensions    int    `json:"dimensions"`
	CacheSize     int    `json:"cache_size"`
	CacheTTLHours int    `json:"cache_ttl_hours"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	PostgresURL string `json:"postgres_url"`
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"` // Allowed CORS origins
	// PublicURL is the externally visible base URL, used to rebuild the
	// signed URL behind a reverse proxy.
	PublicURL string `json:"public_url"`
}

// MCPConfig holds MCP (Model Context Protocol) server configurations
type MCPConfig struct {
	Servers []MCPServerConfig `json:"servers"`
	// Routes maps tool names to the MCP server that serves them.
	// Empty means the built-in routing table.
	Routes map[string]ToolRouteConfig `json:"routes,omitempty"`
}

// ToolRouteConfig points one tool name at an MCP server, optionally
// under a different remote name.
type ToolRouteConfig struct {
	Server     string `json:"server"`
	RemoteTool string `json:"remote_tool,omitempty"`
}

// MCPServerConfig represents a single MCP server configuration
type MCPServerConfig struct {
	Name      string   `json:"name"`
	Transport string   `json:"transport"` // "stdio", "http" or "sse"
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	Env       []string `json:"env,omitempty"`
	URL       string   `json:"url,omitempty"`
	APIKey    string   `json:"api_key,omitempty"`
	// CallTimeoutSeconds overrides the default per-call timeout (20s)
	// for this server when positive.
	CallTimeoutSeconds int `json:"call_timeout_seconds,omitempty"`
}

// MailConfig holds IMAP/SMTP account configuration
type MailConfig struct {
	IMAPAddr string `json:"imap_addr"` // host:port, TLS
	SMTPAddr string `json:"smtp_addr"` // host:port, STARTTLS
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// WhatsAppConfig holds Twilio WhatsApp configuration
type WhatsAppConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"` // e.g., "whatsapp:+14155238886"
	BaseURL    string `json:"base_url"`    // defaults to the Twilio API
}

// CalendlyConfig holds Calendly API and webhook configuration
type CalendlyConfig struct {
	Token             string `json:"token"`
	UserURI           string `json:"user_uri"`
	WebhookSigningKey string `json:"webhook_signing_key"`
}

// PolicyConfig holds the action guardrails
type PolicyConfig struct {
	WorkStartHour    int `json:"work_start_hour"`
	WorkEndHour      int `json:"work_end_hour"`
	MaxLookaheadDays int `json:"max_lookahead_days"`
}

// RAGConfig holds retrieval configuration
type RAGConfig struct {
	TopK          int     `json:"top_k"`
	MinSimilarity float64 `json:"min_similarity"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "dev",
		LLM: LLMConfig{
			URL:         "http://localhost:8000/v1",
			APIKey:      "",
			Model:       "Qwen/Qwen3-8B-AWQ",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		STT: STTConfig{
			URL:   "http://localhost:8001/v1",
			Model: "whisper-large-v3",
		},
		TTS: TTSConfig{
			URL:   "http://localhost:8001/v1",
			Model: "kokoro",
			Voice: "ef_dora",
		},
		Embedding: EmbeddingConfig{
			URL:           "http://localhost:11434/v1",
			APIKey:        "",
			Model:         "text-embedding-3-small",
			Dimensions:    1536,
			CacheSize:     1000,
			CacheTTLHours: 24,
		},
		Database: DatabaseConfig{
			PostgresURL: "",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"}, // Default development origin
		},
		MCP: MCPConfig{
			Servers: []MCPServerConfig{}, // No MCP servers by default
		},
		Policy: PolicyConfig{
			WorkStartHour:    9,
			WorkEndHour:      19,
			MaxLookaheadDays: 90,
		},
		RAG: RAGConfig{
			TopK: 5,
		},
	}
}

// envString loads a string environment variable into the target pointer if set
func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

// envInt loads an integer environment variable into the target pointer if set and valid
func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

// envFloat loads a float64 environment variable into the target pointer if set and valid
func envFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*target = f
		}
	}
}

// envBool loads a boolean environment variable into the target pointer if set and valid
func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

// envStringSlice loads a comma-separated environment variable into a string slice
func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to parse config file %s: %v\n", configPath, err)
		}
	}

	// Load LLM configuration from environment
	envString("CLARA_LLM_URL", &cfg.LLM.URL)
	envString("CLARA_LLM_API_KEY", &cfg.LLM.APIKey)
	envString("CLARA_LLM_MODEL", &cfg.LLM.Model)
	envInt("CLARA_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	envFloat("CLARA_LLM_TEMPERATURE", &cfg.LLM.Temperature)

	// Load speech configuration from environment
	envString("CLARA_STT_URL", &cfg.STT.URL)
	envString("CLARA_STT_MODEL", &cfg.STT.Model)
	envString("CLARA_TTS_URL", &cfg.TTS.URL)
	envString("CLARA_TTS_MODEL", &cfg.TTS.Model)
	envString("CLARA_TTS_VOICE", &cfg.TTS.Voice)

	// Load Embedding configuration from environment
	envString("CLARA_EMBEDDING_URL", &cfg.Embedding.URL)
	envString("CLARA_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	envString("CLARA_EMBEDDING_MODEL", &cfg.Embedding.Model)
	envInt("CLARA_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	envInt("CLARA_EMBEDDING_CACHE_SIZE", &cfg.Embedding.CacheSize)
	envInt("CLARA_EMBEDDING_CACHE_TTL_HOURS", &cfg.Embedding.CacheTTLHours)

	// Load Database configuration from environment
	envString("CLARA_POSTGRES_URL", &cfg.Database.PostgresURL)

	// Load Server configuration from environment
	envString("CLARA_SERVER_HOST", &cfg.Server.Host)
	envInt("CLARA_SERVER_PORT", &cfg.Server.Port)
	envStringSlice("CLARA_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	envString("CLARA_PUBLIC_URL", &cfg.Server.PublicURL)

	// Load Mail configuration from environment
	envString("CLARA_IMAP_ADDR", &cfg.Mail.IMAPAddr)
	envString("CLARA_SMTP_ADDR", &cfg.Mail.SMTPAddr)
	envString("CLARA_MAIL_USERNAME", &cfg.Mail.Username)
	envString("CLARA_MAIL_PASSWORD", &cfg.Mail.Password)
	envString("CLARA_MAIL_FROM", &cfg.Mail.From)

	// Load WhatsApp configuration from environment
	envString("CLARA_TWILIO_ACCOUNT_SID", &cfg.WhatsApp.AccountSID)
	envString("CLARA_TWILIO_AUTH_TOKEN", &cfg.WhatsApp.AuthToken)
	envString("CLARA_WHATSAPP_FROM", &cfg.WhatsApp.FromNumber)
	envString("CLARA_TWILIO_BASE_URL", &cfg.WhatsApp.BaseURL)

	// Load Calendly configuration from environment
	envString("CLARA_CALENDLY_TOKEN", &cfg.Calendly.Token)
	envString("CLARA_CALENDLY_USER_URI", &cfg.Calendly.UserURI)
	envString("CLARA_CALENDLY_SIGNING_KEY", &cfg.Calendly.WebhookSigningKey)

	// Load Policy configuration from environment
	envInt("CLARA_WORK_START_HOUR", &cfg.Policy.WorkStartHour)
	envInt("CLARA_WORK_END_HOUR", &cfg.Policy.WorkEndHour)
	envInt("CLARA_MAX_LOOKAHEAD_DAYS", &cfg.Policy.MaxLookaheadDays)

	// Load RAG configuration from environment
	envInt("CLARA_RAG_TOP_K", &cfg.RAG.TopK)
	envFloat("CLARA_RAG_MIN_SIMILARITY", &cfg.RAG.MinSimilarity)

	envBool("CLARA_MOCK_MODE", &cfg.MockMode)

	// Load MCP configuration from environment
	// MCP servers are primarily configured via config file, but can be augmented via env
	if mcpServersJSON := os.Getenv("CLARA_MCP_SERVERS"); mcpServersJSON != "" {
		var envServers []MCPServerConfig
		if err := json.Unmarshal([]byte(mcpServersJSON), &envServers); err == nil {
			cfg.MCP.Servers = append(cfg.MCP.Servers, envServers...)
		}
	}
	if mcpRoutesJSON := os.Getenv("CLARA_MCP_ROUTES"); mcpRoutesJSON != "" {
		var envRoutes map[string]ToolRouteConfig
		if err := json.Unmarshal([]byte(mcpRoutesJSON), &envRoutes); err == nil {
			cfg.MCP.Routes = envRoutes
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsSTTConfigured returns true if speech recognition is configured
func (c *Config) IsSTTConfigured() bool {
	return c.STT.URL != ""
}

// IsTTSConfigured returns true if text-to-speech is configured
func (c *Config) IsTTSConfigured() bool {
	return c.TTS.URL != ""
}

// IsEmbeddingConfigured returns true if the embedding service is configured
func (c *Config) IsEmbeddingConfigured() bool {
	return c.Embedding.URL != ""
}

// IsWhatsAppConfigured returns true if the Twilio account is configured
func (c *Config) IsWhatsAppConfigured() bool {
	return c.WhatsApp.AccountSID != "" && c.WhatsApp.AuthToken != ""
}

// IsMailConfigured returns true if the mail account is configured
func (c *Config) IsMailConfigured() bool {
	return c.Mail.IMAPAddr != "" || c.Mail.SMTPAddr != ""
}

// IsCalendlyConfigured returns true if the Calendly API is configured
func (c *Config) IsCalendlyConfigured() bool {
	return c.Calendly.Token != ""
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// LLM validation
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}

	// Database validation
	if c.Database.PostgresURL == "" {
		errs = append(errs, "PostgreSQL URL is required")
	} else if !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	// Speech validation (optional but validate if set)
	if c.STT.URL != "" && !isValidURL(c.STT.URL) {
		errs = append(errs, "STT URL must be a valid URL")
	}
	if c.TTS.URL != "" && !isValidURL(c.TTS.URL) {
		errs = append(errs, "TTS URL must be a valid URL")
	}

	// Embedding validation (optional but validate if set)
	if c.Embedding.URL != "" {
		if !isValidURL(c.Embedding.URL) {
			errs = append(errs, "Embedding URL must be a valid URL")
		}
		if c.Embedding.Dimensions < 1 {
			errs = append(errs, "Embedding dimensions must be positive when URL is set")
		}
	}

	// Policy validation
	if c.Policy.WorkStartHour < 0 || c.Policy.WorkStartHour > 23 {
		errs = append(errs, "policy work_start_hour must be between 0 and 23")
	}
	if c.Policy.WorkEndHour < 1 || c.Policy.WorkEndHour > 24 {
		errs = append(errs, "policy work_end_hour must be between 1 and 24")
	}
	if c.Policy.WorkEndHour <= c.Policy.WorkStartHour {
		errs = append(errs, "policy work_end_hour must be after work_start_hour")
	}
	if c.Policy.MaxLookaheadDays < 1 {
		errs = append(errs, "policy max_lookahead_days must be positive")
	}

	// RAG validation
	if c.RAG.TopK < 1 {
		errs = append(errs, "RAG top_k must be positive")
	}
	if c.RAG.MinSimilarity < 0 || c.RAG.MinSimilarity > 1 {
		errs = append(errs, "RAG min_similarity must be between 0 and 1")
	}

	// MCP validation
	for i, server := range c.MCP.Servers {
		if server.Name == "" {
			errs = append(errs, fmt.Sprintf("MCP server %d: name is required", i))
		}
		switch server.Transport {
		case "stdio":
			if server.Command == "" {
				errs = append(errs, fmt.Sprintf("MCP server %s: command is required for stdio transport", server.Name))
			}
		case "http", "sse":
			if server.URL == "" {
				errs = append(errs, fmt.Sprintf("MCP server %s: URL is required for %s transport", server.Name, server.Transport))
			} else if !isValidURL(server.URL) {
				errs = append(errs, fmt.Sprintf("MCP server %s: URL must be a valid URL", server.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("MCP server %s: transport must be 'stdio', 'http' or 'sse'", server.Name))
		}
		if server.CallTimeoutSeconds < 0 {
			errs = append(errs, fmt.Sprintf("MCP server %s: call_timeout_seconds must not be negative", server.Name))
		}
	}

	// MCP route validation: every route must point at a declared server
	serverNames := make(map[string]bool, len(c.MCP.Servers))
	for _, server := range c.MCP.Servers {
		serverNames[server.Name] = true
	}
	for tool, route := range c.MCP.Routes {
		if route.Server == "" {
			errs = append(errs, fmt.Sprintf("MCP route %s: server is required", tool))
		} else if !serverNames[route.Server] {
			errs = append(errs, fmt.Sprintf("MCP route %s: unknown server %q", tool, route.Server))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv("CLARA_CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}

	// Check ~/.config/clara/config.json first
	configDir := filepath.Join(homeDir, ".config", "clara")
	configPath := filepath.Join(configDir, "config.json")
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	// Check ~/.clara/config.json
	altPath := filepath.Join(homeDir, ".clara", "config.json")
	if _, err := os.Stat(altPath); err == nil {
		return altPath
	}

	return configPath
}
