package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTP.Address != ":3001" {
		t.Errorf("expected address :3001, got %q", cfg.HTTP.Address)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("expected path /ws, got %q", cfg.WebSocket.Path)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Errorf("expected open origin policy, got %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.WebSocket.PongWait != 60*time.Second {
		t.Errorf("expected pong wait 60s, got %s", cfg.WebSocket.PongWait)
	}
	if cfg.Service.Name != "telehealth-signaling" {
		t.Errorf("unexpected service name %q", cfg.Service.Name)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
http:
  address: ":9000"
  allowed_origins:
    - "https://portal.example.com"
websocket:
  path: /signal
  max_message_size: 32768
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTP.Address != ":9000" {
		t.Errorf("expected address :9000, got %q", cfg.HTTP.Address)
	}
	if cfg.WebSocket.Path != "/signal" {
		t.Errorf("expected path /signal, got %q", cfg.WebSocket.Path)
	}
	if cfg.WebSocket.MaxMessageSize != 32768 {
		t.Errorf("expected max message size 32768, got %d", cfg.WebSocket.MaxMessageSize)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "https://portal.example.com" {
		t.Errorf("unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}
	// Untouched fields keep their defaults
	if cfg.WebSocket.SendQueueSize != 256 {
		t.Errorf("expected send queue size 256, got %d", cfg.WebSocket.SendQueueSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "10000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTP.Address != ":10000" {
		t.Errorf("expected address :10000, got %q", cfg.HTTP.Address)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 || cfg.HTTP.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("unexpected origins %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Service.Environment != "production" {
		t.Errorf("expected production environment, got %q", cfg.Service.Environment)
	}
}

func TestLoad_ExplicitAddressBeatsPort(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", "127.0.0.1:8080")
	t.Setenv("PORT", "10000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTP.Address != "127.0.0.1:8080" {
		t.Errorf("expected 127.0.0.1:8080, got %q", cfg.HTTP.Address)
	}
}
