package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns defaults with the only mandatory secret filled in
func validConfig() *Config {
	cfg := Default()
	cfg.Reply.APIKey = "test-key"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "empty temp dir",
			mutate:      func(c *Config) { c.Server.TempDir = "" },
			expectError: true,
			errorMsg:    "temp_dir cannot be empty",
		},
		{
			name:        "zero receive timeout",
			mutate:      func(c *Config) { c.Session.ReceiveTimeout = 0 },
			expectError: true,
			errorMsg:    "receive_timeout must be at least 1 second",
		},
		{
			name: "throttle without burst",
			mutate: func(c *Config) {
				c.Session.MaxFragmentsPerSecond = 5
				c.Session.FragmentBurst = 0
			},
			expectError: true,
			errorMsg:    "fragment_burst must be at least 1",
		},
		{
			name:        "wrong transcoder sample rate",
			mutate:      func(c *Config) { c.Transcoder.SampleRate = 8000 },
			expectError: true,
			errorMsg:    "sample_rate must be 16000",
		},
		{
			name:        "stereo transcoder output",
			mutate:      func(c *Config) { c.Transcoder.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "missing reply api key",
			mutate:      func(c *Config) { c.Reply.APIKey = "" },
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
		{
			name:        "temperature out of range",
			mutate:      func(c *Config) { c.Reply.Temperature = 3 },
			expectError: true,
			errorMsg:    "temperature must be between 0 and 2",
		},
		{
			name:        "unknown store backend",
			mutate:      func(c *Config) { c.Conversation.Backend = "sqlite" },
			expectError: true,
			errorMsg:    "backend must be 'memory' or 'redis'",
		},
		{
			name: "redis backend without address",
			mutate: func(c *Config) {
				c.Conversation.Backend = "redis"
				c.Conversation.RedisAddr = ""
			},
			expectError: true,
			errorMsg:    "redis_addr cannot be empty",
		},
		{
			name:        "zero history window",
			mutate:      func(c *Config) { c.Conversation.HistoryWindow = 0 },
			expectError: true,
			errorMsg:    "history_window must be at least 1",
		},
		{
			name: "enabled vad with bad window",
			mutate: func(c *Config) {
				c.VAD.Enabled = true
				c.VAD.WindowSize = 100
			},
			expectError: true,
			errorMsg:    "window_size must be between 256 and 2048",
		},
		{
			name: "disabled vad ignores bad window",
			mutate: func(c *Config) {
				c.VAD.Enabled = false
				c.VAD.WindowSize = 100
			},
			expectError: false,
		},
		{
			name:        "metrics path without slash",
			mutate:      func(c *Config) { c.Metrics.Path = "metrics" },
			expectError: true,
			errorMsg:    "path must start with '/'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  port: 8080
  address: "127.0.0.1"
  temp_dir: "/tmp/voicebot"
session:
  receive_timeout: 30
transcription:
  endpoint: "http://whisper:9000/v1/audio/transcriptions"
reply:
  api_key: "test-key"
  model: "llama3-70b-8192"
conversation:
  backend: "redis"
  redis_addr: "redis:6379"
logging:
  level: "debug"
  format: "json"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required secret",
			configYAML: `
server:
  port: 8080
`,
			expectError: true,
			errorMsg:    "api_key cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPLY_API_KEY", "")

			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config.Server.Port != 8080 {
				t.Errorf("Expected port 8080, got %d", config.Server.Port)
			}
			if config.Conversation.Backend != "redis" {
				t.Errorf("Expected redis backend, got %s", config.Conversation.Backend)
			}
			// Unset keys keep their defaults
			if config.Conversation.HistoryWindow != 6 {
				t.Errorf("Expected default history window 6, got %d", config.Conversation.HistoryWindow)
			}
			if config.Transcoder.SampleRate != 16000 {
				t.Errorf("Expected default sample rate 16000, got %d", config.Transcoder.SampleRate)
			}
		})
	}
}

func TestConfigLoadEnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	t.Setenv("REPLY_API_KEY", "env-reply-key")
	t.Setenv("TRANSCRIPTION_API_KEY", "env-stt-key")
	t.Setenv("REDIS_PASSWORD", "env-redis-pass")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Reply.APIKey != "env-reply-key" {
		t.Errorf("Expected reply key from env, got '%s'", config.Reply.APIKey)
	}
	if config.Transcription.APIKey != "env-stt-key" {
		t.Errorf("Expected transcription key from env, got '%s'", config.Transcription.APIKey)
	}
	if config.Conversation.RedisPassword != "env-redis-pass" {
		t.Errorf("Expected redis password from env, got '%s'", config.Conversation.RedisPassword)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Session.GetReceiveTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected receive timeout 30s, got %v", got)
	}

	if got := cfg.Transcoder.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected transcoder timeout 30s, got %v", got)
	}

	if got := cfg.Transcription.GetTimeoutDuration(); got != 60*time.Second {
		t.Errorf("Expected transcription timeout 60s, got %v", got)
	}

	if got := cfg.Reply.GetTimeoutDuration(); got != 30*time.Second {
		t.Errorf("Expected reply timeout 30s, got %v", got)
	}

	if got := cfg.Conversation.GetRedisTTLDuration(); got != 24*time.Hour {
		t.Errorf("Expected redis ttl 24h, got %v", got)
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		config      LoggingConfig
		expectError bool
	}{
		{"text to stdout", LoggingConfig{Level: "info", Format: "text", Output: "stdout"}, false},
		{"json to file", LoggingConfig{Level: "debug", Format: "json", Output: "/var/log/voicebot.log"}, false},
		{"unknown level", LoggingConfig{Level: "trace", Format: "text"}, true},
		{"unknown format", LoggingConfig{Level: "info", Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}
