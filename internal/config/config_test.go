package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, "unknown database type"},
		{"s3 without bucket", func(c *Config) { c.Blob.Type = "s3" }, "bucket"},
		{"nats without subject", func(c *Config) { c.Mailer.Type = "nats"; c.Mailer.Subject = "" }, "nats_url and subject"},
		{"unknown provider", func(c *Config) { c.Extraction.Provider = "bard" }, "unknown extraction provider"},
		{"zero report max", func(c *Config) { c.Limits.ReportMax = 0 }, "at least 1"},
		{"zero window", func(c *Config) { c.Limits.ReportWindow = 0 }, "windows must be positive"},
		{"relative link", func(c *Config) { c.Links.ConfirmErrorURL = "/oops" }, "confirm_error_url"},
		{"empty owner header", func(c *Config) { c.Auth.OwnerHeader = "" }, "owner header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText() error = %v", err)
	}
	if d.Duration() != 90*time.Second {
		t.Errorf("Duration() = %s, want 90s", d.Duration())
	}
	if err := d.UnmarshalText([]byte("-1s")); err == nil {
		t.Error("UnmarshalText(-1s) error = nil, want error")
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("UnmarshalText(soon) error = nil, want error")
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret("sk-live-123")

	if got := fmt.Sprintf("%v %s %#v", s, s, s); strings.Contains(got, "sk-live") {
		t.Errorf("formatted secret leaked: %q", got)
	}
	b, err := json.Marshal(struct{ Key Secret }{s})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if strings.Contains(string(b), "sk-live") {
		t.Errorf("json leaked secret: %s", b)
	}
	if s.Value() != "sk-live-123" {
		t.Errorf("Value() = %q", s.Value())
	}
	if Secret("").IsSet() {
		t.Error("empty secret reports IsSet")
	}
}
