package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
identity:
  role: supervisor
  id: sup-42
server:
  rest_url: https://api.shiftgrid.test/v1
  ws_url: wss://api.shiftgrid.test/v1
auth:
  token: test-token
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Identity.Role != "supervisor" {
		t.Errorf("Identity.Role = %q, want %q", cfg.Identity.Role, "supervisor")
	}
	if cfg.Identity.ID != "sup-42" {
		t.Errorf("Identity.ID = %q, want %q", cfg.Identity.ID, "sup-42")
	}
	if cfg.Server.RestURL != "https://api.shiftgrid.test/v1" {
		t.Errorf("Server.RestURL = %q, want %q", cfg.Server.RestURL, "https://api.shiftgrid.test/v1")
	}
	if cfg.Auth.Token != "test-token" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "test-token")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_API_TOKEN", "secret123")

	yaml := `
identity:
  role: supervisor
  id: sup-42
server:
  rest_url: https://api.shiftgrid.test/v1
  ws_url: wss://api.shiftgrid.test/v1
auth:
  token: ${TEST_API_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.Token != "secret123" {
		t.Errorf("Auth.Token = %q, want %q", cfg.Auth.Token, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
identity:
  role: supervisor
  id: sup-42
server:
  rest_url: https://api.shiftgrid.test/v1
  ws_url: wss://api.shiftgrid.test/v1
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Connection.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Connection.ReconnectBaseDelay = %v, want default %v", cfg.Connection.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Connection.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Connection.MaxReconnectAttempts = %d, want default %d", cfg.Connection.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.Connection.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("Connection.HeartbeatInterval = %v, want default %v", cfg.Connection.HeartbeatInterval, DefaultHeartbeatInterval)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("Storage.Backend = %q, want default %q", cfg.Storage.Backend, DefaultStorageBackend)
	}
	if cfg.Probe.URL != cfg.Server.RestURL {
		t.Errorf("Probe.URL = %q, want rest_url fallback %q", cfg.Probe.URL, cfg.Server.RestURL)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *AgentConfig {
		cfg := &AgentConfig{
			Identity: IdentityConfig{Role: "supervisor", ID: "sup-42"},
			Server: ServerConfig{
				RestURL: "https://api.shiftgrid.test/v1",
				WSURL:   "wss://api.shiftgrid.test/v1",
			},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*AgentConfig)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*AgentConfig) {},
			wantErr: false,
		},
		{
			name:    "missing role",
			mutate:  func(c *AgentConfig) { c.Identity.Role = "" },
			wantErr: true,
		},
		{
			name:    "missing id",
			mutate:  func(c *AgentConfig) { c.Identity.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing rest url",
			mutate:  func(c *AgentConfig) { c.Server.RestURL = "" },
			wantErr: true,
		},
		{
			name:    "missing ws url",
			mutate:  func(c *AgentConfig) { c.Server.WSURL = "" },
			wantErr: true,
		},
		{
			name: "pong timeout not above heartbeat",
			mutate: func(c *AgentConfig) {
				c.Connection.HeartbeatInterval = 30 * time.Second
				c.Connection.PongTimeout = 30 * time.Second
			},
			wantErr: true,
		},
		{
			name:    "zero reconnect attempts",
			mutate:  func(c *AgentConfig) { c.Connection.MaxReconnectAttempts = -1 },
			wantErr: true,
		},
		{
			name: "max delay below base delay",
			mutate: func(c *AgentConfig) {
				c.Connection.ReconnectBaseDelay = 10 * time.Second
				c.Connection.ReconnectMaxDelay = time.Second
			},
			wantErr: true,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *AgentConfig) { c.Storage.Backend = "redis" },
			wantErr: true,
		},
		{
			name: "postgres backend requires connection details",
			mutate: func(c *AgentConfig) {
				c.Storage.Backend = "postgres"
			},
			wantErr: true,
		},
		{
			name: "memory backend needs nothing else",
			mutate: func(c *AgentConfig) {
				c.Storage.Backend = "memory"
				c.Storage.Dir = ""
			},
			wantErr: false,
		},
		{
			name:    "invalid metrics port",
			mutate:  func(c *AgentConfig) { c.Metrics.Port = 70000 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
