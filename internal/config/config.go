package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the dealership call service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	CallInactivityTimeout    time.Duration
	DurationTickInterval     time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// CRMBaseURL points at the dealership backend Call API. Empty selects
	// the in-process simulator.
	CRMBaseURL        string
	CRMRequestTimeout time.Duration

	VoiceProvider   string
	DefaultLanguage string

	ElevenLabsAPIKey    string
	ElevenLabsBaseURL   string
	ElevenLabsWSBaseURL string
	ElevenLabsVoice     string
	ElevenLabsModel     string
	ElevenLabsSTTModel  string

	LocalSynthCLI        string
	LocalSynthSampleRate int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "dealervoice"),
		AllowAnyOrigin:        false,
		CRMBaseURL:            envTrimmed("CRM_BASE_URL"),
		VoiceProvider:         envOrDefault("VOICE_PROVIDER", "auto"),
		DefaultLanguage:       envOrDefault("APP_DEFAULT_LANGUAGE", "en-IN"),
		ElevenLabsAPIKey:      envTrimmed("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:     envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL:   envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		// Rachel: the default warm female voice tuned for Hinglish prompts.
		ElevenLabsVoice:       envOrDefault("ELEVENLABS_VOICE", "rachel"),
		ElevenLabsModel:       envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsSTTModel:    envOrDefault("ELEVENLABS_STT_MODEL_ID", "scribe_v1"),
		LocalSynthCLI:         envOrDefault("LOCAL_SYNTH_CLI", "espeak"),
		LocalSynthSampleRate:  16000,
		DatabaseURL:           envTrimmed("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		CallInactivityTimeout: 5 * time.Minute,
		DurationTickInterval:  time.Second,
		CRMRequestTimeout:     30 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallInactivityTimeout, err = durationFromEnv("APP_CALL_INACTIVITY_TIMEOUT", cfg.CallInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DurationTickInterval, err = durationFromEnv("APP_DURATION_TICK_INTERVAL", cfg.DurationTickInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.CRMRequestTimeout, err = durationFromEnv("CRM_REQUEST_TIMEOUT", cfg.CRMRequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LocalSynthSampleRate, err = intFromEnv("LOCAL_SYNTH_SAMPLE_RATE", cfg.LocalSynthSampleRate)
	if err != nil {
		return Config{}, err
	}

	if cfg.CallInactivityTimeout < 10*time.Second {
		return Config{}, fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 10s")
	}
	if cfg.DurationTickInterval < 100*time.Millisecond {
		return Config{}, fmt.Errorf("APP_DURATION_TICK_INTERVAL must be at least 100ms")
	}
	if cfg.CRMRequestTimeout <= 0 {
		return Config{}, fmt.Errorf("CRM_REQUEST_TIMEOUT must be positive")
	}
	if cfg.LocalSynthSampleRate <= 0 {
		return Config{}, fmt.Errorf("LOCAL_SYNTH_SAMPLE_RATE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
