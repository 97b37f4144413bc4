package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Dir != ".missionline" {
		t.Errorf("log dir %q", cfg.Log.Dir)
	}
	if cfg.ExecutionTimeout() != 60*time.Second {
		t.Errorf("timeout %v", cfg.ExecutionTimeout())
	}
	if cfg.Execution.MinConfidence != 0.5 {
		t.Errorf("min confidence %v", cfg.Execution.MinConfidence)
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	yml := `log:
  dir: streams
execution:
  timeout_seconds: 5
  min_confidence: 0.8
`
	if err := os.WriteFile(Path(dir), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Dir != "streams" {
		t.Errorf("log dir %q", cfg.Log.Dir)
	}
	if cfg.ExecutionTimeout() != 5*time.Second {
		t.Errorf("timeout %v", cfg.ExecutionTimeout())
	}
	if got := cfg.LogDir(dir); got != filepath.Join(dir, "streams") {
		t.Errorf("resolved log dir %q", got)
	}
}

func TestValidateRejectsBadWebhookStatus(t *testing.T) {
	yml := `webhooks:
  - url: https://example.com/hook
    statuses: [done]
`
	if _, err := FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected error for unknown webhook status")
	}
}

func TestValidateRejectsWebhookWithoutURL(t *testing.T) {
	yml := `webhooks:
  - statuses: [completed]
`
	if _, err := FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected error for webhook without url")
	}
}

func TestValidateRejectsBadConfidence(t *testing.T) {
	yml := `execution:
  min_confidence: 1.5
`
	if _, err := FromYAML([]byte(yml)); err == nil {
		t.Fatal("expected error for out-of-range confidence")
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("default template must parse: %v", err)
	}
}
