package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load before environment overrides.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8080
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMTemperature = 0.7
	DefaultSTTModel       = "whisper-1"
	DefaultTTSModel       = "sonic-2"
	DefaultTimeoutSeconds = 30
	DefaultTTSTimeoutSecs = 10
	DefaultMemoryMaxTurns = 50
)

// Load builds a Config: defaults, then the YAML file at path (skipped when
// path is empty), then environment variable overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeYAML(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	applyEnv(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of defaults and
// validates the result. Environment variables are not consulted. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaults()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     DefaultHost,
			Port:     DefaultPort,
			LogLevel: LogInfo,
		},
		LLM: LLMConfig{
			Provider:       DefaultLLMProvider,
			Model:          DefaultLLMModel,
			Temperature:    DefaultLLMTemperature,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		STT: STTConfig{
			Model:          DefaultSTTModel,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		TTS: TTSConfig{
			Model:                    DefaultTTSModel,
			FirstChunkTimeoutSeconds: DefaultTTSTimeoutSecs,
		},
		Memory: MemoryConfig{
			MaxTurns: DefaultMemoryMaxTurns,
		},
	}
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file keeps the defaults
		}
		return err
	}
	return nil
}

// applyEnv layers environment overrides onto cfg. getenv is injected so tests
// do not mutate the process environment.
func applyEnv(cfg *Config, getenv func(string) string) {
	setStr := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr("HOST", &cfg.Server.Host)
	setInt("PORT", &cfg.Server.Port)
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	setInt("IDLE_SESSION_MINUTES", &cfg.Server.IdleSessionMinutes)

	setStr("LLM_PROVIDER", &cfg.LLM.Provider)
	setStr("LLM_MODEL", &cfg.LLM.Model)
	setFloat("LLM_TEMPERATURE", &cfg.LLM.Temperature)
	setInt("LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	setInt("LLM_TIMEOUT_S", &cfg.LLM.TimeoutSeconds)
	setStr("OPENAI_API_KEY", &cfg.LLM.APIKey)
	setStr("LLM_API_KEY", &cfg.LLM.APIKey)

	setStr("STT_MODEL", &cfg.STT.Model)
	setInt("STT_TIMEOUT_S", &cfg.STT.TimeoutSeconds)
	setStr("STT_API_KEY", &cfg.STT.APIKey)

	setStr("TTS_VOICE_ID", &cfg.TTS.VoiceID)
	setStr("TTS_MODEL", &cfg.TTS.Model)
	setInt("TTS_FIRST_CHUNK_TIMEOUT_S", &cfg.TTS.FirstChunkTimeoutSeconds)
	setStr("CARTESIA_API_KEY", &cfg.TTS.APIKey)

	setInt("MEMORY_MAX_TURNS", &cfg.Memory.MaxTurns)
	setStr("SYSTEM_PROMPT", &cfg.Memory.SystemPrompt)

	setStr("ARCHIVE_POSTGRES_DSN", &cfg.Archive.PostgresDSN)

	// Transcription shares the platform key with the LLM unless overridden.
	if cfg.STT.APIKey == "" {
		cfg.STT.APIKey = cfg.LLM.APIKey
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.IdleSessionMinutes < 0 {
		errs = append(errs, fmt.Errorf("server.idle_session_minutes must not be negative"))
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0.0, 2.0]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must not be negative"))
	}
	if cfg.LLM.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_seconds must be positive"))
	}
	if cfg.STT.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("stt.timeout_seconds must be positive"))
	}
	if cfg.TTS.FirstChunkTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("tts.first_chunk_timeout_seconds must be positive"))
	}
	if cfg.Memory.MaxTurns < 2 {
		errs = append(errs, fmt.Errorf("memory.max_turns %d must be at least 2", cfg.Memory.MaxTurns))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
