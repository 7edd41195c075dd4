package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice command service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Recognition engine: deepgram, google or mock
	Engine              string `envconfig:"ENGINE" default:"deepgram"`
	DeepgramAPIKey      string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel       string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	RecognitionLanguage string `envconfig:"RECOGNITION_LANGUAGE" default:"en-US"` // fixed for the process lifetime

	// Audio source: microphone (local capture) or remote (pushed over the control websocket)
	AudioSource        string  `envconfig:"AUDIO_SOURCE" default:"microphone"`
	AudioEncoding      string  `envconfig:"AUDIO_ENCODING" default:"linear16"` // encoding of remote audio: linear16 or mulaw
	AudioSampleRate    int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioFrameMs       int     `envconfig:"AUDIO_FRAME_MS" default:"20"`
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"32768"`    // Ring buffer size in bytes
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold for VAD
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"25"`      // Frames of silence to mark speech end

	// Listener configuration
	NoSpeechTimeoutMs int `envconfig:"NO_SPEECH_TIMEOUT_MS" default:"8000"` // 0 disables the silence watchdog
	SetupTimeoutMs    int `envconfig:"SETUP_TIMEOUT_MS" default:"5000"`

	// Resilience configuration
	RetryInitialBackoffMs      int     `envconfig:"RETRY_INITIAL_BACKOFF_MS" default:"500"`
	RetryMaxBackoffMs          int     `envconfig:"RETRY_MAX_BACKOFF_MS" default:"30000"`
	RetryMultiplier            float64 `envconfig:"RETRY_MULTIPLIER" default:"2.0"`
	RetryMaxAttempts           int     `envconfig:"RETRY_MAX_ATTEMPTS" default:"8"`             // 0 retries forever
	CircuitBreakerMaxFailures  int     `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int     `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Keyword presets and settings persistence
	KeywordCatalogPath string `envconfig:"KEYWORD_CATALOG_PATH" default:""` // empty uses the built-in presets
	KeywordPreset      string `envconfig:"KEYWORD_PRESET" default:""`       // initial preset when none is stored
	SettingsDBPath     string `envconfig:"SETTINGS_DB_PATH" default:""`     // empty keeps settings in memory

	// Event bus (optional)
	NATSURL           string `envconfig:"NATS_URL" default:""`
	NATSSubjectPrefix string `envconfig:"NATS_SUBJECT_PREFIX" default:"cuecam"`
	NATSEmbedded      bool   `envconfig:"NATS_EMBEDDED" default:"false"`
	NATSPort          int    `envconfig:"NATS_PORT" default:"4222"`

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Engine = strings.ToLower(strings.TrimSpace(cfg.Engine))
	cfg.AudioSource = strings.ToLower(strings.TrimSpace(cfg.AudioSource))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Engine {
	case "deepgram":
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when ENGINE=deepgram")
		}
	case "google", "mock":
	default:
		return fmt.Errorf("ENGINE must be deepgram, google or mock, got %q", c.Engine)
	}

	switch c.AudioSource {
	case "microphone", "remote":
	default:
		return fmt.Errorf("AUDIO_SOURCE must be microphone or remote, got %q", c.AudioSource)
	}

	if c.AudioSampleRate < 8000 {
		return fmt.Errorf("AUDIO_SAMPLE_RATE must be at least 8000, got %d", c.AudioSampleRate)
	}
	if c.AudioFrameMs < 10 || c.AudioFrameMs > 200 {
		return fmt.Errorf("AUDIO_FRAME_MS must be between 10 and 200, got %d", c.AudioFrameMs)
	}
	if c.SetupTimeoutMs <= 0 {
		return fmt.Errorf("SETUP_TIMEOUT_MS must be positive, got %d", c.SetupTimeoutMs)
	}
	if c.RetryInitialBackoffMs <= 0 {
		return fmt.Errorf("RETRY_INITIAL_BACKOFF_MS must be positive, got %d", c.RetryInitialBackoffMs)
	}
	if c.RetryMaxBackoffMs < c.RetryInitialBackoffMs {
		return fmt.Errorf("RETRY_MAX_BACKOFF_MS (%d) must not be below RETRY_INITIAL_BACKOFF_MS (%d)", c.RetryMaxBackoffMs, c.RetryInitialBackoffMs)
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be at least 1, got %v", c.RetryMultiplier)
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must not be negative, got %d", c.RetryMaxAttempts)
	}
	return nil
}

// AudioFrameDuration returns the capture frame length
func (c *Config) AudioFrameDuration() time.Duration {
	return time.Duration(c.AudioFrameMs) * time.Millisecond
}

// NoSpeechTimeout returns the silence watchdog timeout
func (c *Config) NoSpeechTimeout() time.Duration {
	return time.Duration(c.NoSpeechTimeoutMs) * time.Millisecond
}

// SetupTimeout returns the bound on reaching Listening after a start
func (c *Config) SetupTimeout() time.Duration {
	return time.Duration(c.SetupTimeoutMs) * time.Millisecond
}

// RetryInitialBackoff returns the first retry delay
func (c *Config) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
}

// RetryMaxBackoff returns the retry delay cap
func (c *Config) RetryMaxBackoff() time.Duration {
	return time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
}

// CircuitBreakerReset returns the open-circuit cool-down
func (c *Config) CircuitBreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}
