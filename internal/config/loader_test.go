package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir and returns the allowed config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "nomee")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	if err := os.Chmod(path, perm); err != nil {
		t.Fatalf("Failed to chmod test config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Limits.SubmissionMax != 3 || cfg.Limits.SubmissionWindow.Duration() != 24*time.Hour {
		t.Errorf("submission limit = %d/%s, want 3/24h", cfg.Limits.SubmissionMax, cfg.Limits.SubmissionWindow.Duration())
	}
	if cfg.Limits.ReportMax != 5 || cfg.Limits.ReportWindow.Duration() != time.Hour {
		t.Errorf("report limit = %d/%s, want 5/1h", cfg.Limits.ReportMax, cfg.Limits.ReportWindow.Duration())
	}
	if cfg.Extraction.Provider != "disabled" {
		t.Errorf("Extraction.Provider = %q, want disabled", cfg.Extraction.Provider)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `server:
  http_port: 9191
  shutdown_timeout: 3s
database:
  type: memory
limits:
  submission_window: 12h
  auto_flag_threshold: 4
`, 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout.Duration() != 3*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 3s", cfg.Server.ShutdownTimeout.Duration())
	}
	if cfg.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want memory", cfg.Database.Type)
	}
	if cfg.Limits.SubmissionWindow.Duration() != 12*time.Hour {
		t.Errorf("SubmissionWindow = %s, want 12h", cfg.Limits.SubmissionWindow.Duration())
	}
	if cfg.Limits.AutoFlagThreshold != 4 {
		t.Errorf("AutoFlagThreshold = %d, want 4", cfg.Limits.AutoFlagThreshold)
	}
	// Untouched sections keep defaults.
	if cfg.Limits.ReportMax != 5 {
		t.Errorf("ReportMax = %d, want default 5", cfg.Limits.ReportMax)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0600)

	t.Setenv("NOMEE_SERVER_HTTP_PORT", "9292")
	t.Setenv("NOMEE_EXTRACTION_PROVIDER", "anthropic")
	t.Setenv("NOMEE_EXTRACTION_API_KEY", "sk-test-value")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if cfg.Server.Port != 9292 {
		t.Errorf("Server.Port = %d, want 9292", cfg.Server.Port)
	}
	if cfg.Extraction.APIKey.Value() != "sk-test-value" {
		t.Errorf("Extraction.APIKey not loaded from env")
	}
	if cfg.Extraction.APIKey.String() != "[REDACTED]" {
		t.Errorf("APIKey.String() = %q, want redacted", cfg.Extraction.APIKey.String())
	}
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 9191\n", 0644)

	if _, err := Load(path); err == nil {
		t.Fatal("Load() error = nil, want permission error")
	}
}

func TestLoad_RejectsPathOutsideAllowedDirs(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := Load(outside); err == nil {
		t.Fatal("Load() error = nil, want path validation error")
	}
}

func TestLoad_ProviderWithoutKeyFailsValidation(t *testing.T) {
	setupTestHome(t)
	t.Setenv("NOMEE_EXTRACTION_PROVIDER", "openai")

	if _, err := Load(""); err == nil {
		t.Fatal("Load() error = nil, want missing api_key error")
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NOMEE_SERVER_HTTP_PORT", "server.http_port"},
		{"NOMEE_BLOB_SECRET_ACCESS_KEY", "blob.secret_access_key"},
		{"NOMEE_AUTH", "auth"},
	}
	for _, tt := range tests {
		if got := envKey(tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
