package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Pipeline    PipelineConfig  `yaml:"pipeline"`
	Voices      VoicesConfig    `yaml:"voices"`
	Bus         BusConfig       `yaml:"bus"`
	Worker      WorkerConfig    `yaml:"worker"`
	Ledger      LedgerConfig    `yaml:"ledger"`
}

type SynthesisConfig struct {
	Provider           string `yaml:"provider"` // elevenlabs, exec, mock
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	Command            string `yaml:"command"`
	RequestTimeoutMS   int    `yaml:"request_timeout_ms"`
	MaxAttempts        int    `yaml:"max_attempts"`
	BackoffBaseMS      int    `yaml:"backoff_base_ms"`
	BackoffMaxMS       int    `yaml:"backoff_max_ms"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	DefaultFormat      string `yaml:"default_format"`
	DefaultSampleRate  int    `yaml:"default_sample_rate"`
}

type PipelineConfig struct {
	MaxConcurrency   int `yaml:"max_concurrency"`
	SegmentChars     int `yaml:"segment_chars"`
	MaxTextLength    int `yaml:"max_text_length"`
	OverallTimeoutMS int `yaml:"overall_timeout_ms"`
}

type VoicesConfig struct {
	Path    string `yaml:"path"`
	Default string `yaml:"default"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type WorkerConfig struct {
	Enabled         bool `yaml:"enabled"`
	MaxAudioPayload int  `yaml:"max_audio_payload_bytes"`
}

type LedgerConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		ServiceName: "narra-tts",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Synthesis: SynthesisConfig{
			Provider:           "elevenlabs",
			BaseURL:            "https://api.elevenlabs.io/v1",
			RequestTimeoutMS:   30000,
			MaxAttempts:        3,
			BackoffBaseMS:      500,
			BackoffMaxMS:       4000,
			RateLimitPerMinute: 60,
			DefaultFormat:      "mp3",
			DefaultSampleRate:  22050,
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:   4,
			SegmentChars:     2500,
			MaxTextLength:    10000,
			OverallTimeoutMS: 300000,
		},
		Voices: VoicesConfig{
			Path:    "",
			Default: "adam",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Worker: WorkerConfig{
			Enabled:         false,
			MaxAudioPayload: 1 << 20,
		},
		Ledger: LedgerConfig{
			Path:          "./data/narra-generations.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRecords:    10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "NARRA_SERVICE_NAME")
	overrideString(&cfg.Environment, "NARRA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NARRA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Synthesis.Provider, "NARRA_SYNTHESIS_PROVIDER")
	overrideString(&cfg.Synthesis.APIKey, "NARRA_SYNTHESIS_API_KEY")
	overrideString(&cfg.Synthesis.BaseURL, "NARRA_SYNTHESIS_BASE_URL")
	overrideString(&cfg.Synthesis.Command, "NARRA_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.RequestTimeoutMS, "NARRA_SYNTHESIS_REQUEST_TIMEOUT_MS")
	overrideInt(&cfg.Synthesis.MaxAttempts, "NARRA_SYNTHESIS_MAX_ATTEMPTS")
	overrideInt(&cfg.Synthesis.BackoffBaseMS, "NARRA_SYNTHESIS_BACKOFF_BASE_MS")
	overrideInt(&cfg.Synthesis.BackoffMaxMS, "NARRA_SYNTHESIS_BACKOFF_MAX_MS")
	overrideInt(&cfg.Synthesis.RateLimitPerMinute, "NARRA_SYNTHESIS_RATE_LIMIT_PER_MINUTE")
	overrideString(&cfg.Synthesis.DefaultFormat, "NARRA_SYNTHESIS_DEFAULT_FORMAT")
	overrideInt(&cfg.Synthesis.DefaultSampleRate, "NARRA_SYNTHESIS_DEFAULT_SAMPLE_RATE")
	overrideInt(&cfg.Pipeline.MaxConcurrency, "NARRA_PIPELINE_MAX_CONCURRENCY")
	overrideInt(&cfg.Pipeline.SegmentChars, "NARRA_PIPELINE_SEGMENT_CHARS")
	overrideInt(&cfg.Pipeline.MaxTextLength, "NARRA_PIPELINE_MAX_TEXT_LENGTH")
	overrideInt(&cfg.Pipeline.OverallTimeoutMS, "NARRA_PIPELINE_OVERALL_TIMEOUT_MS")
	overrideString(&cfg.Voices.Path, "NARRA_VOICES_PATH")
	overrideString(&cfg.Voices.Default, "NARRA_VOICES_DEFAULT")
	overrideBool(&cfg.Bus.Enabled, "NARRA_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "NARRA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRA_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Worker.Enabled, "NARRA_WORKER_ENABLED")
	overrideInt(&cfg.Worker.MaxAudioPayload, "NARRA_WORKER_MAX_AUDIO_PAYLOAD_BYTES")
	overrideString(&cfg.Ledger.Path, "NARRA_LEDGER_PATH")
	overrideString(&cfg.Ledger.RetentionMode, "NARRA_LEDGER_RETENTION_MODE")
	overrideInt(&cfg.Ledger.RetentionDays, "NARRA_LEDGER_RETENTION_DAYS")
	overrideInt(&cfg.Ledger.MaxRecords, "NARRA_LEDGER_MAX_RECORDS")
	overrideBool(&cfg.Ledger.VacuumOnStart, "NARRA_LEDGER_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch cfg.Synthesis.Provider {
	case "elevenlabs", "exec", "mock":
	default:
		return errors.New("synthesis.provider must be one of elevenlabs|exec|mock")
	}
	if cfg.Synthesis.Provider == "elevenlabs" && cfg.Synthesis.BaseURL == "" {
		return errors.New("synthesis.base_url must be set when provider=elevenlabs")
	}
	if cfg.Synthesis.Provider == "exec" && cfg.Synthesis.Command == "" {
		return errors.New("synthesis.command must be set when provider=exec")
	}
	if cfg.Synthesis.RequestTimeoutMS <= 0 {
		return errors.New("synthesis.request_timeout_ms must be positive")
	}
	if cfg.Synthesis.MaxAttempts < 1 {
		return errors.New("synthesis.max_attempts must be >= 1")
	}
	if cfg.Synthesis.BackoffBaseMS <= 0 || cfg.Synthesis.BackoffMaxMS < cfg.Synthesis.BackoffBaseMS {
		return errors.New("synthesis backoff bounds must satisfy 0 < base <= max")
	}
	if cfg.Synthesis.RateLimitPerMinute < 0 {
		return errors.New("synthesis.rate_limit_per_minute must be >= 0")
	}
	switch cfg.Synthesis.DefaultFormat {
	case "mp3", "wav", "ogg":
	default:
		return errors.New("synthesis.default_format must be one of mp3|wav|ogg")
	}
	if cfg.Synthesis.DefaultSampleRate < 8000 || cfg.Synthesis.DefaultSampleRate > 48000 {
		return errors.New("synthesis.default_sample_rate must be between 8000 and 48000")
	}
	if cfg.Pipeline.MaxConcurrency < 1 {
		return errors.New("pipeline.max_concurrency must be >= 1")
	}
	if cfg.Pipeline.SegmentChars < 1 {
		return errors.New("pipeline.segment_chars must be >= 1")
	}
	if cfg.Pipeline.MaxTextLength < cfg.Pipeline.SegmentChars {
		return errors.New("pipeline.max_text_length must be >= pipeline.segment_chars")
	}
	if cfg.Pipeline.OverallTimeoutMS <= 0 {
		return errors.New("pipeline.overall_timeout_ms must be positive")
	}
	if cfg.Voices.Default == "" {
		return errors.New("voices.default must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Worker.Enabled {
		if !cfg.Bus.Enabled {
			return errors.New("worker.enabled requires bus.enabled")
		}
		if cfg.Worker.MaxAudioPayload < 0 {
			return errors.New("worker.max_audio_payload_bytes must be >= 0")
		}
	}
	if cfg.Ledger.Path == "" {
		return errors.New("ledger.path must not be empty")
	}
	switch cfg.Ledger.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("ledger.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.Ledger.RetentionDays < 0 {
		return errors.New("ledger.retention_days must be >= 0")
	}
	return nil
}
