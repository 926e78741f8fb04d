package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Transcoder    TranscoderConfig    `yaml:"transcoder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Reply         ReplyConfig         `yaml:"reply"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	VAD           VADConfig           `yaml:"vad"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig contains HTTP / WebSocket server configuration
type ServerConfig struct {
	Port                  int    `yaml:"port"`
	Address               string `yaml:"address"`
	StaticDir             string `yaml:"static_dir"`
	TempDir               string `yaml:"temp_dir"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
	MaxUploadBytes        int64  `yaml:"max_upload_bytes"`
}

// SessionConfig contains streaming session parameters
type SessionConfig struct {
	ReceiveTimeout         int     `yaml:"receive_timeout"` // seconds
	MaxFragmentBytes       int64   `yaml:"max_fragment_bytes"`
	MaxFragmentsPerSecond  float64 `yaml:"max_fragments_per_second"` // 0 disables throttling
	FragmentBurst          int     `yaml:"fragment_burst"`
}

// TranscoderConfig contains the external audio filter settings
type TranscoderConfig struct {
	FFmpegPath    string `yaml:"ffmpeg_path"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// TranscriptionConfig contains transcription API configuration
type TranscriptionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ReplyConfig contains chat-completion engine configuration
type ReplyConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	Timeout      int     `yaml:"timeout"` // seconds
	SystemPrompt string  `yaml:"system_prompt"`
}

// ConversationConfig contains conversation store configuration
type ConversationConfig struct {
	Backend       string `yaml:"backend"` // "memory" or "redis"
	HistoryWindow int    `yaml:"history_window"`
	EvictOnClose  bool   `yaml:"evict_on_close"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	RedisTTL      int    `yaml:"redis_ttl"` // seconds, 0 disables expiry
}

// VADConfig contains the optional silence gate configuration
type VADConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Threshold  float32 `yaml:"threshold"`
	WindowSize int     `yaml:"window_size"` // samples
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration populated with the service defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                  8000,
			Address:               "0.0.0.0",
			StaticDir:             "static",
			TempDir:               "temp",
			MaxConcurrentSessions: 100,
			MaxUploadBytes:        50 << 20,
		},
		Session: SessionConfig{
			ReceiveTimeout:   30,
			MaxFragmentBytes: 10 << 20,
			FragmentBurst:    1,
		},
		Transcoder: TranscoderConfig{
			FFmpegPath:    "ffmpeg",
			SampleRate:    16000,
			Channels:      1,
			Timeout:       30,
			MaxConcurrent: 4,
		},
		Transcription: TranscriptionConfig{
			Endpoint:      "http://localhost:9000/v1/audio/transcriptions",
			Model:         "tiny",
			Timeout:       60,
			MaxRetries:    2,
			MaxConcurrent: 4,
		},
		Reply: ReplyConfig{
			BaseURL:      "https://api.groq.com/openai/v1",
			Model:        "llama3-70b-8192",
			Temperature:  0.7,
			Timeout:      30,
			SystemPrompt: DefaultSystemPrompt,
		},
		Conversation: ConversationConfig{
			Backend:       "memory",
			HistoryWindow: 6,
			EvictOnClose:  true,
			RedisAddr:     "localhost:6379",
			RedisPrefix:   "voicebot",
			RedisTTL:      86400,
		},
		VAD: VADConfig{
			Enabled:    false,
			Threshold:  0.02,
			WindowSize: 512,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// DefaultSystemPrompt is the persona directive sent ahead of every conversation
const DefaultSystemPrompt = `You are an emotionally expressive, friendly assistant talking to a human.
Your responses should:
- Include feelings like excitement, curiosity, warmth, or empathy
- Use natural spoken language, like a friend or companion would
- Be short and expressive (1-3 sentences)
- Use pauses (like "..."), and light emphasis to guide speech synthesis

Speak like you're really there with them, with heart, tone, and emotion.`

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnv overrides secrets from the environment when set
func (c *Config) applyEnv() {
	if v := os.Getenv("TRANSCRIPTION_API_KEY"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("REPLY_API_KEY"); v != "" {
		c.Reply.APIKey = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Conversation.RedisPassword = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Transcoder.Validate(); err != nil {
		return fmt.Errorf("transcoder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Reply.Validate(); err != nil {
		return fmt.Errorf("reply config: %w", err)
	}

	if err := c.Conversation.Validate(); err != nil {
		return fmt.Errorf("conversation config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.TempDir == "" {
		return fmt.Errorf("temp_dir cannot be empty")
	}

	if s.MaxConcurrentSessions < 1 {
		return fmt.Errorf("max_concurrent_sessions must be at least 1, got %d", s.MaxConcurrentSessions)
	}

	if s.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024 bytes, got %d", s.MaxUploadBytes)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.ReceiveTimeout < 1 {
		return fmt.Errorf("receive_timeout must be at least 1 second, got %d", s.ReceiveTimeout)
	}

	if s.MaxFragmentBytes < 1024 {
		return fmt.Errorf("max_fragment_bytes must be at least 1024 bytes, got %d", s.MaxFragmentBytes)
	}

	if s.MaxFragmentsPerSecond < 0 {
		return fmt.Errorf("max_fragments_per_second cannot be negative, got %f", s.MaxFragmentsPerSecond)
	}

	if s.MaxFragmentsPerSecond > 0 && s.FragmentBurst < 1 {
		return fmt.Errorf("fragment_burst must be at least 1 when throttling, got %d", s.FragmentBurst)
	}

	return nil
}

// Validate validates transcoder configuration
func (t *TranscoderConfig) Validate() error {
	if t.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if t.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for the transcription engine, got %d", t.SampleRate)
	}

	if t.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", t.Channels)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates reply engine configuration
func (r *ReplyConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if r.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", r.Temperature)
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates conversation store configuration
func (c *ConversationConfig) Validate() error {
	if c.HistoryWindow < 1 {
		return fmt.Errorf("history_window must be at least 1, got %d", c.HistoryWindow)
	}

	switch c.Backend {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr cannot be empty when backend is redis")
		}
		if c.RedisTTL < 0 {
			return fmt.Errorf("redis_ttl cannot be negative, got %d", c.RedisTTL)
		}
	default:
		return fmt.Errorf("backend must be 'memory' or 'redis', got '%s'", c.Backend)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if !v.Enabled {
		return nil
	}

	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.WindowSize < 256 || v.WindowSize > 2048 {
		return fmt.Errorf("window_size must be between 256 and 2048 samples, got %d", v.WindowSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && (m.Path == "" || m.Path[0] != '/') {
		return fmt.Errorf("path must start with '/', got '%s'", m.Path)
	}
	return nil
}

// GetReceiveTimeoutDuration returns the fragment receive timeout as a time.Duration
func (s *SessionConfig) GetReceiveTimeoutDuration() time.Duration {
	return time.Duration(s.ReceiveTimeout) * time.Second
}

// GetTimeoutDuration returns the transcoder timeout as a time.Duration
func (t *TranscoderConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the reply engine timeout as a time.Duration
func (r *ReplyConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetRedisTTLDuration returns the Redis history TTL as a time.Duration
func (c *ConversationConfig) GetRedisTTLDuration() time.Duration {
	return time.Duration(c.RedisTTL) * time.Second
}
