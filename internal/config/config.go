// Package config provides configuration loading for nomee.
//
// Values come from an optional YAML file and NOMEE_* environment variables,
// on top of the defaults returned by Default.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete nomee configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Blob          BlobConfig          `koanf:"blob"`
	Mailer        MailerConfig        `koanf:"mailer"`
	Extraction    ExtractionConfig    `koanf:"extraction"`
	Limits        LimitsConfig        `koanf:"limits"`
	Auth          AuthConfig          `koanf:"auth"`
	Links         LinksConfig         `koanf:"links"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	// Type is "sqlite" or "memory".
	Type        string   `koanf:"type"`
	Path        string   `koanf:"path"`
	BusyTimeout Duration `koanf:"busy_timeout"`
}

// BlobConfig selects object storage for voice notes and screenshots.
type BlobConfig struct {
	// Type is "memory" or "s3".
	Type            string `koanf:"type"`
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	Prefix          string `koanf:"prefix"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey Secret `koanf:"secret_access_key"`
	PublicBaseURL   string `koanf:"public_base_url"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// MailerConfig selects how confirmation emails are dispatched.
type MailerConfig struct {
	// Type is "log" or "nats".
	Type    string `koanf:"type"`
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
	From    string `koanf:"from"`
}

// ExtractionConfig configures the LLM capability used for screenshot imports.
type ExtractionConfig struct {
	// Provider is "anthropic", "openai", "langchain" or "disabled".
	Provider          string   `koanf:"provider"`
	APIKey            Secret   `koanf:"api_key"`
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	StageTimeout      Duration `koanf:"stage_timeout"`
	MaxRetries        int      `koanf:"max_retries"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
}

// LimitsConfig holds abuse limits.
type LimitsConfig struct {
	SubmissionMax     int      `koanf:"submission_max"`
	SubmissionWindow  Duration `koanf:"submission_window"`
	ReportMax         int      `koanf:"report_max"`
	ReportWindow      Duration `koanf:"report_window"`
	AutoFlagThreshold int      `koanf:"auto_flag_threshold"`
}

// AuthConfig configures owner authentication.
type AuthConfig struct {
	// OwnerHeader carries the subject verified by the upstream auth gateway.
	OwnerHeader string `koanf:"owner_header"`
}

// LinksConfig holds externally visible URLs.
type LinksConfig struct {
	PublicBaseURL     string `koanf:"public_base_url"`
	ConfirmSuccessURL string `koanf:"confirm_success_url"`
	ConfirmErrorURL   string `koanf:"confirm_error_url"`
}

// LoggingConfig is the subset of logging settings exposed through config files.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	OTLPEndpoint    string `koanf:"otlp_endpoint"`
	OTLPProtocol    string `koanf:"otlp_protocol"`
	OTLPInsecure    bool   `koanf:"otlp_insecure"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
			MaxUploadBytes:  10 << 20,
		},
		Database: DatabaseConfig{
			Type:        "sqlite",
			Path:        "nomee.db",
			BusyTimeout: Duration(5 * time.Second),
		},
		Blob: BlobConfig{
			Type:   "memory",
			Region: "us-east-1",
		},
		Mailer: MailerConfig{
			Type:    "log",
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "nomee.email.confirmation",
			From:    "no-reply@nomee.local",
		},
		Extraction: ExtractionConfig{
			Provider:          "disabled",
			StageTimeout:      Duration(60 * time.Second),
			MaxRetries:        3,
			RequestsPerMinute: 50,
		},
		Limits: LimitsConfig{
			SubmissionMax:     3,
			SubmissionWindow:  Duration(24 * time.Hour),
			ReportMax:         5,
			ReportWindow:      Duration(time.Hour),
			AutoFlagThreshold: 3,
		},
		Auth: AuthConfig{
			OwnerHeader: "X-Nomee-Owner",
		},
		Links: LinksConfig{
			PublicBaseURL:     "http://localhost:8080",
			ConfirmSuccessURL: "http://localhost:3000/contribute/confirmed",
			ConfirmErrorURL:   "http://localhost:3000/contribute/confirm-error",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			EnableTelemetry: false,
			ServiceName:     "nomee",
			OTLPEndpoint:    "localhost:4317",
			OTLPProtocol:    "grpc",
			OTLPInsecure:    true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path required for sqlite")
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	switch c.Blob.Type {
	case "memory":
	case "s3":
		if c.Blob.Bucket == "" {
			return errors.New("blob bucket required for s3")
		}
	default:
		return fmt.Errorf("unknown blob type %q", c.Blob.Type)
	}

	switch c.Mailer.Type {
	case "log":
	case "nats":
		if c.Mailer.NATSURL == "" || c.Mailer.Subject == "" {
			return errors.New("mailer nats_url and subject required for nats")
		}
	default:
		return fmt.Errorf("unknown mailer type %q", c.Mailer.Type)
	}

	switch c.Extraction.Provider {
	case "disabled":
	case "anthropic", "openai", "langchain":
		if !c.Extraction.APIKey.IsSet() {
			return fmt.Errorf("extraction api_key required for provider %s", c.Extraction.Provider)
		}
	default:
		return fmt.Errorf("unknown extraction provider %q", c.Extraction.Provider)
	}
	if c.Extraction.StageTimeout <= 0 {
		return errors.New("extraction stage timeout must be positive")
	}

	if c.Limits.SubmissionMax < 1 || c.Limits.ReportMax < 1 {
		return errors.New("rate limit maximums must be at least 1")
	}
	if c.Limits.SubmissionWindow <= 0 || c.Limits.ReportWindow <= 0 {
		return errors.New("rate limit windows must be positive")
	}
	if c.Limits.AutoFlagThreshold < 1 {
		return errors.New("auto flag threshold must be at least 1")
	}

	if c.Auth.OwnerHeader == "" {
		return errors.New("auth owner header required")
	}

	for name, raw := range map[string]string{
		"links.public_base_url":     c.Links.PublicBaseURL,
		"links.confirm_success_url": c.Links.ConfirmSuccessURL,
		"links.confirm_error_url":   c.Links.ConfirmErrorURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}
