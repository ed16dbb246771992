package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins is the WebSocket cross-origin accept policy. "*" accepts
	// any origin, which is how the deployed instance runs.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig represents WebSocket transport configuration
type WebSocketConfig struct {
	Path             string        `yaml:"path"`
	BufferSize       int           `yaml:"buffer_size"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteWait        time.Duration `yaml:"write_wait"`
	PongWait         time.Duration `yaml:"pong_wait"`
	PingPeriod       time.Duration `yaml:"ping_period"`
	SendQueueSize    int           `yaml:"send_queue_size"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads the configuration, starting from defaults, then the YAML file at
// path (if given), then environment overrides.
func Load(path string) (*Config, error) {
	// Set default configuration
	config := &Config{
		HTTP: HTTPConfig{
			Address:         ":3001",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		WebSocket: WebSocketConfig{
			Path:             "/ws",
			BufferSize:       1024,
			MaxMessageSize:   64 * 1024,
			HandshakeTimeout: 10 * time.Second,
			WriteWait:        10 * time.Second,
			PongWait:         60 * time.Second,
			PingPeriod:       54 * time.Second,
			SendQueueSize:    256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
	config.Service.Name = "telehealth-signaling"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(config)

	return config, nil
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(config *Config) {
	// HTTP address; PORT alone matches the original deployment environment
	if addr := os.Getenv("HTTP_ADDRESS"); addr != "" {
		config.HTTP.Address = addr
	} else if port := os.Getenv("PORT"); port != "" {
		config.HTTP.Address = ":" + port
	}

	// WebSocket path
	if path := os.Getenv("WS_PATH"); path != "" {
		config.WebSocket.Path = path
	}

	// Allowed origins, comma separated
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		allowed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				allowed = append(allowed, p)
			}
		}
		config.HTTP.AllowedOrigins = allowed
	}

	// Environment
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		config.Service.Environment = env
	}
}
