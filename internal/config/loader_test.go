package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.LLM.Model != DefaultLLMModel || cfg.LLM.Temperature != DefaultLLMTemperature {
		t.Errorf("llm defaults = %+v", cfg.LLM)
	}
	if cfg.Memory.MaxTurns != DefaultMemoryMaxTurns {
		t.Errorf("memory.max_turns = %d, want %d", cfg.Memory.MaxTurns, DefaultMemoryMaxTurns)
	}
	if cfg.TTS.FirstChunkTimeoutSeconds != DefaultTTSTimeoutSecs {
		t.Errorf("tts first-chunk timeout = %d", cfg.TTS.FirstChunkTimeoutSeconds)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(`
server:
  host: 127.0.0.1
  port: 9000
  log_level: debug
llm:
  provider: anthropic
  model: claude-3-5-haiku-latest
  temperature: 0.2
  max_tokens: 150
tts:
  voice_id: voice-7
memory:
  max_turns: 12
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.MaxTokens != 150 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.TTS.VoiceID != "voice-7" {
		t.Errorf("tts.voice_id = %q", cfg.TTS.VoiceID)
	}
	if cfg.Memory.MaxTurns != 12 {
		t.Errorf("memory.max_turns = %d", cfg.Memory.MaxTurns)
	}
	// File did not set the STT model, so the default survives.
	if cfg.STT.Model != DefaultSTTModel {
		t.Errorf("stt.model = %q", cfg.STT.Model)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := LoadFromReader(strings.NewReader("serverr:\n  port: 1\n")); err == nil {
		t.Error("unknown top-level key accepted")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := defaults()
	cfg.Server.Port = 0
	cfg.Server.LogLevel = "loud"
	cfg.LLM.Temperature = 3
	cfg.Memory.MaxTurns = 1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("invalid config validated")
	}
	for _, want := range []string{"server.port", "server.log_level", "llm.temperature", "memory.max_turns"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"HOST":                      "10.0.0.5",
		"PORT":                      "9999",
		"LLM_MODEL":                 "gpt-4o",
		"LLM_TEMPERATURE":           "0.1",
		"LLM_MAX_TOKENS":            "80",
		"TTS_VOICE_ID":              "v-env",
		"MEMORY_MAX_TURNS":          "20",
		"STT_TIMEOUT_S":             "15",
		"LLM_TIMEOUT_S":             "20",
		"TTS_FIRST_CHUNK_TIMEOUT_S": "5",
		"OPENAI_API_KEY":            "sk-test",
		"CARTESIA_API_KEY":          "ct-test",
	}
	cfg := defaults()
	applyEnv(cfg, func(k string) string { return env[k] })

	if cfg.Addr() != "10.0.0.5:9999" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.Temperature != 0.1 || cfg.LLM.MaxTokens != 80 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.TTS.VoiceID != "v-env" || cfg.TTS.APIKey != "ct-test" {
		t.Errorf("tts = %+v", cfg.TTS)
	}
	if cfg.Memory.MaxTurns != 20 {
		t.Errorf("memory.max_turns = %d", cfg.Memory.MaxTurns)
	}
	if cfg.STT.TimeoutSeconds != 15 || cfg.LLM.TimeoutSeconds != 20 || cfg.TTS.FirstChunkTimeoutSeconds != 5 {
		t.Errorf("timeouts = %d/%d/%d", cfg.STT.TimeoutSeconds, cfg.LLM.TimeoutSeconds, cfg.TTS.FirstChunkTimeoutSeconds)
	}
	// STT inherits the platform key when not set separately.
	if cfg.STT.APIKey != "sk-test" {
		t.Errorf("stt.api_key = %q, want inherited sk-test", cfg.STT.APIKey)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate after env overrides: %v", err)
	}
}
