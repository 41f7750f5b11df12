// Package voicecore implements the per-call voice session engine: the
// protocol codec, audio pipeline, turn manager, realtime provider adapter,
// and session state machine that together drive a full-duplex voice call.
package voicecore

import (
	"os"
	"strconv"
)

// Config holds every tunable recognized by the engine. Values are loaded
// once at engine construction and merged with per-session overrides sent on
// session.start.
type Config struct {
	MinCommitMs             int
	MinCommitBytes          int
	MinUserAudioMs          int
	MinTranscriptChars      int
	VADThreshold            float64
	VADSilenceMs            int
	VADHangoverMs           int
	MinSpeechMsForTurn      int
	BargeInMinMs            int
	SemanticEoTEnabled      bool
	SemanticEoTUseLLM       bool
	SemanticEoTMinDelayMs   int
	SemanticEoTMaxDelayMs   int
	SemanticEoTTimeoutMs    int
	OutputChunkMs           int
	ProviderConnectTimeoutMs int
	// PostTurnContinuationSilenceMs is left ambiguous by the source: one
	// branch used 3000ms, another 360ms. We expose it rather than pick
	// silently; default favors the shorter, more responsive value.
	PostTurnContinuationSilenceMs int

	ProviderSampleRateHz int
	// ProviderUseServerVAD selects the provider's own server_vad turn
	// detection. When false, the session relies entirely on TurnManager's
	// local VAD/EoT and commits audio explicitly (manual mode).
	ProviderUseServerVAD bool

	ProviderModel        string
	ProviderVoice        string
	ProviderInstructions string
	ProviderTemperature  float64
	ProviderLanguage     string
}

// DefaultConfig returns the engine defaults documented in the external
// interfaces section of the design.
func DefaultConfig() *Config {
	c := &Config{
		MinCommitMs:                   120,
		MinUserAudioMs:                400,
		MinTranscriptChars:            3,
		VADThreshold:                  0.015,
		VADSilenceMs:                  280,
		VADHangoverMs:                 180,
		MinSpeechMsForTurn:            180,
		BargeInMinMs:                  220,
		SemanticEoTEnabled:            true,
		SemanticEoTUseLLM:             false,
		SemanticEoTMinDelayMs:         250,
		SemanticEoTMaxDelayMs:         900,
		SemanticEoTTimeoutMs:          180,
		OutputChunkMs:                 90,
		ProviderConnectTimeoutMs:      8000,
		PostTurnContinuationSilenceMs: 360,
		ProviderSampleRateHz:          24000,
		ProviderUseServerVAD:          false,
		ProviderModel:                 "gpt-realtime",
		ProviderVoice:                 "shimmer",
		ProviderTemperature:           0.8,
	}
	c.MinCommitBytes = c.MinCommitMs * c.ProviderSampleRateHz * 1 * 2 / 1000
	return c
}

// LoadConfigFromEnv overlays VOICE_CORE_-prefixed environment variables on
// top of DefaultConfig, matching this codebase's env-driven configuration
// convention (see cmd/ entrypoints, which call godotenv.Load() before
// reading os.Getenv).
func LoadConfigFromEnv() *Config {
	c := DefaultConfig()

	c.MinCommitMs = envInt("VOICE_CORE_MIN_COMMIT_MS", c.MinCommitMs)
	c.MinCommitBytes = envInt("VOICE_CORE_MIN_COMMIT_BYTES", c.MinCommitBytes)
	c.MinUserAudioMs = envInt("VOICE_CORE_MIN_USER_AUDIO_MS", c.MinUserAudioMs)
	c.MinTranscriptChars = envInt("VOICE_CORE_MIN_TRANSCRIPT_CHARS", c.MinTranscriptChars)
	c.VADThreshold = envFloat("VOICE_CORE_VAD_THRESHOLD", c.VADThreshold)
	c.VADSilenceMs = envInt("VOICE_CORE_VAD_SILENCE_MS", c.VADSilenceMs)
	c.VADHangoverMs = envInt("VOICE_CORE_VAD_HANGOVER_MS", c.VADHangoverMs)
	c.MinSpeechMsForTurn = envInt("VOICE_CORE_MIN_SPEECH_MS_FOR_TURN", c.MinSpeechMsForTurn)
	c.BargeInMinMs = envInt("BARGE_IN_MIN_MS", c.BargeInMinMs)
	c.SemanticEoTEnabled = envBool("SEMANTIC_EOT_ENABLED", c.SemanticEoTEnabled)
	c.SemanticEoTUseLLM = envBool("SEMANTIC_EOT_USE_LLM", c.SemanticEoTUseLLM)
	c.SemanticEoTMinDelayMs = envInt("SEMANTIC_EOT_MIN_DELAY_MS", c.SemanticEoTMinDelayMs)
	c.SemanticEoTMaxDelayMs = envInt("SEMANTIC_EOT_MAX_DELAY_MS", c.SemanticEoTMaxDelayMs)
	c.SemanticEoTTimeoutMs = envInt("SEMANTIC_EOT_TIMEOUT_MS", c.SemanticEoTTimeoutMs)
	c.OutputChunkMs = envInt("OUTPUT_CHUNK_MS", c.OutputChunkMs)
	c.ProviderConnectTimeoutMs = envInt("PROVIDER_CONNECT_TIMEOUT_MS", c.ProviderConnectTimeoutMs)
	c.ProviderUseServerVAD = envBool("VOICE_CORE_PROVIDER_USE_SERVER_VAD", c.ProviderUseServerVAD)
	c.PostTurnContinuationSilenceMs = envInt("POST_TURN_CONTINUATION_SILENCE_MS", c.PostTurnContinuationSilenceMs)
	c.ProviderModel = envString("VOICE_CORE_PROVIDER_MODEL", c.ProviderModel)
	c.ProviderVoice = envString("VOICE_CORE_PROVIDER_VOICE", c.ProviderVoice)
	c.ProviderLanguage = envString("VOICE_CORE_PROVIDER_LANGUAGE", c.ProviderLanguage)

	return c
}

// Merge returns a copy of c with any non-zero field in override applied on
// top, used to apply the per-session overrides carried in session.start's
// payload on top of the engine-wide runtime config.
func (c *Config) Merge(override *Config) *Config {
	if override == nil {
		return c
	}
	merged := *c
	if override.MinCommitMs != 0 {
		merged.MinCommitMs = override.MinCommitMs
	}
	if override.MinCommitBytes != 0 {
		merged.MinCommitBytes = override.MinCommitBytes
	}
	if override.MinUserAudioMs != 0 {
		merged.MinUserAudioMs = override.MinUserAudioMs
	}
	if override.MinTranscriptChars != 0 {
		merged.MinTranscriptChars = override.MinTranscriptChars
	}
	if override.VADThreshold != 0 {
		merged.VADThreshold = override.VADThreshold
	}
	if override.VADSilenceMs != 0 {
		merged.VADSilenceMs = override.VADSilenceMs
	}
	if override.VADHangoverMs != 0 {
		merged.VADHangoverMs = override.VADHangoverMs
	}
	if override.MinSpeechMsForTurn != 0 {
		merged.MinSpeechMsForTurn = override.MinSpeechMsForTurn
	}
	if override.BargeInMinMs != 0 {
		merged.BargeInMinMs = override.BargeInMinMs
	}
	if override.OutputChunkMs != 0 {
		merged.OutputChunkMs = override.OutputChunkMs
	}
	if override.ProviderModel != "" {
		merged.ProviderModel = override.ProviderModel
	}
	if override.ProviderVoice != "" {
		merged.ProviderVoice = override.ProviderVoice
	}
	if override.ProviderInstructions != "" {
		merged.ProviderInstructions = override.ProviderInstructions
	}
	if override.ProviderTemperature != 0 {
		merged.ProviderTemperature = override.ProviderTemperature
	}
	if override.ProviderLanguage != "" {
		merged.ProviderLanguage = override.ProviderLanguage
	}
	return &merged
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
