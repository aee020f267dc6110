package voices

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `default: brightside
voices:
  - name: brightside
    voice_id: abc123
    model_id: eleven_turbo_v2_5
    description: Cheerful Narrator
    tier: news
    settings:
      stability: 0.5
      similarity_boost: 0.8
      style: 0.1
      use_speaker_boost: true
`

func TestBuiltinCatalog(t *testing.T) {
	cat := Builtin()
	if err := cat.Validate(); err != nil {
		t.Fatalf("builtin catalog invalid: %v", err)
	}
	v, err := cat.Get("adam")
	if err != nil {
		t.Fatalf("get adam: %v", err)
	}
	if v.VoiceID != "pNInz6obpgDQGcFmaJgB" {
		t.Fatalf("unexpected voice id %q", v.VoiceID)
	}
	if v.Settings.Stability != 0.7 {
		t.Fatalf("unexpected stability %v", v.Settings.Stability)
	}
}

func TestGetDefaultOnEmptyName(t *testing.T) {
	cat := Builtin()
	v, err := cat.Get("")
	if err != nil {
		t.Fatalf("get default: %v", err)
	}
	if v.Name != "adam" {
		t.Fatalf("expected adam, got %q", v.Name)
	}
}

func TestGetUnknownVoice(t *testing.T) {
	cat := Builtin()
	_, err := cat.Get("nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadMergesFile(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "voices.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, err := cat.Get("brightside")
	if err != nil {
		t.Fatalf("get brightside: %v", err)
	}
	if v.Settings.SimilarityBoost != 0.8 {
		t.Fatalf("expected file settings, got %+v", v.Settings)
	}
	if cat.Default().Name != "brightside" {
		t.Fatalf("expected file default, got %q", cat.Default().Name)
	}
	// builtin voices survive the merge
	if _, err := cat.Get("sarah"); err != nil {
		t.Fatalf("expected builtin sarah to survive merge: %v", err)
	}
}

func TestLoadFillsMissingSettings(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "voices.yaml")
	body := `voices:
  - name: plain
    voice_id: xyz
    model_id: eleven_flash_v2_5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v, err := cat.Get("plain")
	if err != nil {
		t.Fatalf("get plain: %v", err)
	}
	if v.Settings != defaultSettings() {
		t.Fatalf("expected default settings, got %+v", v.Settings)
	}
}

func TestValidateRejectsBadDefault(t *testing.T) {
	if _, err := Load("", "ghost"); err == nil {
		t.Fatal("expected error for unknown default voice")
	}
}

func TestValidateRejectsOutOfRangeSettings(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "voices.yaml")
	body := `voices:
  - name: loud
    voice_id: xyz
    model_id: m
    settings:
      stability: 1.5
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected error for out of range stability")
	}
}
