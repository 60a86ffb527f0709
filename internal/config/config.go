// Package config provides the configuration schema and loader for the
// voicewire gateway. Configuration comes from an optional YAML file with
// environment variables layered on top, so a containerised deployment can run
// from environment alone.
package config

import "time"

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for the gateway.
// It is typically produced by [Load].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	STT     STTConfig     `yaml:"stt"`
	TTS     TTSConfig     `yaml:"tts"`
	Memory  MemoryConfig  `yaml:"memory"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the bind address. Default "0.0.0.0".
	Host string `yaml:"host"`

	// Port is the bind port. Default 8080.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// IdleSessionMinutes destroys sessions idle for longer than this.
	// Zero disables idle reaping (the default).
	IdleSessionMinutes int `yaml:"idle_session_minutes"`
}

// LLMConfig selects and tunes the reply model.
type LLMConfig struct {
	// Provider is the backend name: "openai" (native SDK) or any name the
	// multi-provider backend accepts ("anthropic", "gemini", "ollama", ...).
	Provider string `yaml:"provider"`

	// Model is the model identifier. Default "gpt-4o-mini".
	Model string `yaml:"model"`

	// Temperature controls sampling randomness. Default 0.7.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. Zero means provider default.
	MaxTokens int `yaml:"max_tokens"`

	// TimeoutSeconds bounds each completion call. Default 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// APIKey authenticates to the backend. Usually supplied via environment.
	APIKey string `yaml:"api_key"`
}

// STTConfig tunes transcription.
type STTConfig struct {
	// Model is the transcription model. Default "whisper-1".
	Model string `yaml:"model"`

	// TimeoutSeconds bounds each transcription call. Default 30.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// APIKey authenticates to the backend. Defaults to the LLM key when both
	// use the same platform.
	APIKey string `yaml:"api_key"`
}

// TTSConfig tunes synthesis.
type TTSConfig struct {
	// VoiceID is the default synthesis voice.
	VoiceID string `yaml:"voice_id"`

	// Model is the synthesis model. Default "sonic-2".
	Model string `yaml:"model"`

	// FirstChunkTimeoutSeconds bounds the wait for the first audio chunk.
	// Default 10.
	FirstChunkTimeoutSeconds int `yaml:"first_chunk_timeout_seconds"`

	// APIKey authenticates to the synthesis backend.
	APIKey string `yaml:"api_key"`
}

// MemoryConfig tunes conversation memory.
type MemoryConfig struct {
	// MaxTurns caps retained non-system turns. Default 50.
	MaxTurns int `yaml:"max_turns"`

	// SystemPrompt overrides the default assistant directive.
	SystemPrompt string `yaml:"system_prompt"`
}

// ArchiveConfig enables the optional Postgres turn archive.
type ArchiveConfig struct {
	// PostgresDSN is the archive database connection string. Empty disables
	// archiving.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Addr returns the host:port bind address.
func (c *Config) Addr() string {
	return joinHostPort(c.Server.Host, c.Server.Port)
}

// LLMTimeout returns the completion timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// STTTimeout returns the transcription timeout as a duration.
func (c *Config) STTTimeout() time.Duration {
	return time.Duration(c.STT.TimeoutSeconds) * time.Second
}

// TTSFirstChunkTimeout returns the first-chunk timeout as a duration.
func (c *Config) TTSFirstChunkTimeout() time.Duration {
	return time.Duration(c.TTS.FirstChunkTimeoutSeconds) * time.Second
}
