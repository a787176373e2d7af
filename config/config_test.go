package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"aural/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Audio.Source != "http" {
		t.Errorf("Audio.Source: got %s, want http", cfg.Audio.Source)
	}
	if cfg.Speech.TimeoutSeconds != 10 {
		t.Errorf("Speech.TimeoutSeconds: got %d, want 10", cfg.Speech.TimeoutSeconds)
	}
	if cfg.DefaultModel != "llama" {
		t.Errorf("DefaultModel: got %s, want llama", cfg.DefaultModel)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %s, want debug", cfg.Log.Level)
	}

	m, ok := cfg.Models["deepseek"]
	if !ok {
		t.Fatal("default deepseek model missing")
	}
	if m.CleanupPattern == "" {
		t.Error("deepseek model should have a cleanup pattern")
	}
	if m.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL: got %s, want http://localhost:11434", m.BaseURL)
	}

	if len(cfg.Hotwords["dolphin"]) == 0 {
		t.Error("default dolphin hotwords missing")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HA_TOKEN", "secret-token")

	path := writeConfig(t, "home_assistant:\n  token: ${HA_TOKEN}\n  url: http://hub.local:8123\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.HomeAssistant.Token != "secret-token" {
		t.Errorf("Token: got %s, want secret-token", cfg.HomeAssistant.Token)
	}
	if cfg.HomeAssistant.URL != "http://hub.local:8123" {
		t.Errorf("URL: got %s", cfg.HomeAssistant.URL)
	}
}

func TestLoad_ModelOverride(t *testing.T) {
	path := writeConfig(t, `
models:
  llama:
    name: llama3.2
    base_url: http://gpu-box:11434
    fallback_url: http://localhost:8000
hotwords:
  llama: ["hey llama"]
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	m := cfg.Models["llama"]
	if m.BaseURL != "http://gpu-box:11434" {
		t.Errorf("BaseURL: got %s", m.BaseURL)
	}
	if m.FallbackURL != "http://localhost:8000" {
		t.Errorf("FallbackURL: got %s", m.FallbackURL)
	}
	if len(cfg.Hotwords) != 1 || cfg.Hotwords["llama"][0] != "hey llama" {
		t.Errorf("Hotwords: got %v", cfg.Hotwords)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
