package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.BaseURL != "https://api.elevenlabs.io/v1" {
		t.Fatalf("expected default base url, got %q", cfg.Synthesis.BaseURL)
	}
	if cfg.Synthesis.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.Synthesis.MaxAttempts)
	}
	if cfg.Pipeline.SegmentChars != 2500 {
		t.Fatalf("expected segment chars 2500, got %d", cfg.Pipeline.SegmentChars)
	}
	if cfg.Voices.Default != "adam" {
		t.Fatalf("expected default voice adam, got %q", cfg.Voices.Default)
	}
}

func TestLoadFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "narra.yaml")
	body := `service_name: narra-test
synthesis:
  provider: mock
  request_timeout_ms: 5000
pipeline:
  max_concurrency: 2
  segment_chars: 100
  max_text_length: 500
ledger:
  retention_mode: ephemeral
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServiceName != "narra-test" {
		t.Fatalf("expected service name override, got %q", cfg.ServiceName)
	}
	if cfg.Synthesis.Provider != "mock" {
		t.Fatalf("expected mock provider, got %q", cfg.Synthesis.Provider)
	}
	if cfg.Pipeline.MaxConcurrency != 2 || cfg.Pipeline.SegmentChars != 100 {
		t.Fatalf("expected pipeline overrides, got %+v", cfg.Pipeline)
	}
	if cfg.Ledger.RetentionMode != "ephemeral" {
		t.Fatalf("expected ledger retention override, got %q", cfg.Ledger.RetentionMode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRA_SYNTHESIS_PROVIDER", "mock")
	t.Setenv("NARRA_SYNTHESIS_API_KEY", "sk-test")
	t.Setenv("NARRA_SYNTHESIS_MAX_ATTEMPTS", "5")
	t.Setenv("NARRA_SYNTHESIS_RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("NARRA_PIPELINE_MAX_CONCURRENCY", "8")
	t.Setenv("NARRA_PIPELINE_SEGMENT_CHARS", "1000")
	t.Setenv("NARRA_VOICES_DEFAULT", "sarah")
	t.Setenv("NARRA_BUS_ENABLED", "true")
	t.Setenv("NARRA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("NARRA_BUS_EMBEDDED", "false")
	t.Setenv("NARRA_LEDGER_PATH", "./tmp.db")
	t.Setenv("NARRA_LEDGER_RETENTION_MODE", "persistent")
	t.Setenv("NARRA_LEDGER_RETENTION_DAYS", "7")
	t.Setenv("NARRA_LEDGER_MAX_RECORDS", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Synthesis.Provider != "mock" || cfg.Synthesis.APIKey != "sk-test" {
		t.Fatalf("expected synthesis overrides, got %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.Synthesis.MaxAttempts)
	}
	if cfg.Synthesis.RateLimitPerMinute != 120 {
		t.Fatalf("expected rate limit 120, got %d", cfg.Synthesis.RateLimitPerMinute)
	}
	if cfg.Pipeline.MaxConcurrency != 8 || cfg.Pipeline.SegmentChars != 1000 {
		t.Fatalf("expected pipeline overrides, got %+v", cfg.Pipeline)
	}
	if cfg.Voices.Default != "sarah" {
		t.Fatalf("expected voice override")
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Ledger.Path != "./tmp.db" {
		t.Fatalf("expected ledger path override")
	}
	if cfg.Ledger.RetentionMode != "persistent" {
		t.Fatalf("expected ledger retention mode override")
	}
	if cfg.Ledger.RetentionDays != 7 {
		t.Fatalf("expected ledger retention days override")
	}
	if cfg.Ledger.MaxRecords != 123 {
		t.Fatalf("expected ledger max records override")
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	t.Setenv("NARRA_SYNTHESIS_PROVIDER", "espeak")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("NARRA_SYNTHESIS_PROVIDER", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec provider without command")
	}
}

func TestValidateRejectsWorkerWithoutBus(t *testing.T) {
	t.Setenv("NARRA_WORKER_ENABLED", "true")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for worker without bus")
	}
}
