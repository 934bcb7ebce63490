package mcp

import (
	"net"
	"strings"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"fe80::1", true},
		{"0.0.0.0", true},
		{"::", true},
		{"224.0.0.1", true},
		{"ff02::1", true},
		{"::ffff:192.168.1.1", true},

		// Public addresses must come back false, not hang or overflow.
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"93.184.216.34", false},
		{"::ffff:8.8.8.8", false},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		ip := net.ParseIP(tt.ip)
		if ip == nil {
			t.Fatalf("failed to parse IP %s", tt.ip)
		}
		if got := isPrivateIP(ip); got != tt.private {
			t.Errorf("isPrivateIP(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}

func TestIsPrivateIP_Nil(t *testing.T) {
	if isPrivateIP(nil) {
		t.Error("isPrivateIP(nil) should be false")
	}
}

func TestValidateURL_Blocklist(t *testing.T) {
	original := AllowedURLHosts
	defer func() { AllowedURLHosts = original }()
	AllowedURLHosts = nil

	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"empty URL", "", "URL must have a hostname"},
		{"no hostname", "not-a-url", "URL must have a hostname"},
		{"file scheme", "file:///etc/passwd", "unsupported URL scheme"},
		{"ftp scheme", "ftp://example.com", "unsupported URL scheme"},
		{"localhost", "http://localhost:8080", "internal/metadata hostname"},
		{"metadata service", "http://metadata.google.internal", "internal/metadata hostname"},
		{"metadata IP", "http://169.254.169.254", "internal/metadata hostname"},
		{"kubernetes FQDN", "http://kubernetes.default.svc.cluster.local", "internal/metadata hostname"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateURL(tt.url)
			if err == nil {
				t.Fatalf("validateURL(%q) should fail", tt.url)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL_Allowlist(t *testing.T) {
	original := AllowedURLHosts
	defer func() { AllowedURLHosts = original }()
	AllowedURLHosts = []string{"api.example.com", "mcp.example.org"}

	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://api.example.com/endpoint", false},
		{"https://mcp.example.org/sse", false},
		{"https://API.EXAMPLE.COM/endpoint", false},
		{"https://other.example.com/endpoint", true},
		{"http://localhost:8080", true},
	}

	for _, tt := range tests {
		err := validateURL(tt.url)
		if tt.wantErr && err == nil {
			t.Errorf("validateURL(%q) should fail", tt.url)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("validateURL(%q) failed: %v", tt.url, err)
		}
	}
}

func TestNewHTTPSSETransport_RejectsUnsafeURLs(t *testing.T) {
	original := AllowedURLHosts
	defer func() { AllowedURLHosts = original }()
	AllowedURLHosts = nil

	for _, url := range []string{
		"http://localhost:8080",
		"http://169.254.169.254",
		"file:///etc/passwd",
	} {
		if _, err := NewHTTPSSETransport(url, ""); err == nil {
			t.Errorf("NewHTTPSSETransport(%q) should fail", url)
		}
	}
}
