// Nomeed serves the nomee contribution and signal API over HTTP.
//
// Configuration is loaded from an optional YAML file and NOMEE_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	nomeed
//
//	# Configure via environment
//	NOMEE_SERVER_HTTP_PORT=9090 NOMEE_DATABASE_PATH=/var/lib/nomee/nomee.db nomeed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/auth"
	"github.com/stephdmurray-sys/nomee-sub001/internal/blob"
	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/contribution"
	"github.com/stephdmurray-sys/nomee-sub001/internal/extraction"
	httpserver "github.com/stephdmurray-sys/nomee-sub001/internal/http"
	"github.com/stephdmurray-sys/nomee-sub001/internal/identity"
	"github.com/stephdmurray-sys/nomee-sub001/internal/imports"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
	"github.com/stephdmurray-sys/nomee-sub001/internal/mailer"
	"github.com/stephdmurray-sys/nomee-sub001/internal/moderation"
	"github.com/stephdmurray-sys/nomee-sub001/internal/ratelimit"
	"github.com/stephdmurray-sys/nomee-sub001/internal/signals"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
	"github.com/stephdmurray-sys/nomee-sub001/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/nomee/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  nomeed           Start the nomee API server\n")
			fmt.Fprintf(os.Stderr, "  nomeed version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("nomeed\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled.
//
// Startup order:
//  1. Load and validate configuration
//  2. Initialize logger and telemetry
//  3. Open the store, blob storage, mailer and extraction client
//  4. Build the domain services
//  5. Serve HTTP until ctx is cancelled, then shut down gracefully
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn("Telemetry degraded, continuing without exporters", zap.Error(terr))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting nomeed",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Type),
		zap.String("blob", cfg.Blob.Type),
		zap.String("mailer", cfg.Mailer.Type),
		zap.String("extraction", cfg.Extraction.Provider),
		logging.Secret("extraction_key", cfg.Extraction.APIKey))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	svcDeps, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpserver.NewServer(svcDeps, logger, &httpserver.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		MaxUploadBytes:    cfg.Server.MaxUploadBytes,
		ConfirmSuccessURL: cfg.Links.ConfirmSuccessURL,
		ConfirmErrorURL:   cfg.Links.ConfirmErrorURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Received shutdown signal, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// dependencies holds infrastructure shared by the services.
type dependencies struct {
	store     *store.Store
	blobs     blob.Store
	mailer    mailer.Mailer
	extractor extraction.Client

	closeMailer func()
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.closeMailer != nil {
		d.closeMailer()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	lc, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	l, err := logging.NewLogger(lc)
	if err != nil {
		return nil, err
	}
	return l.Underlying(), nil
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{}

	st, err := store.NewFromConfig(ctx, cfg.Database, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	d.store = st
	logger.Info("Store opened", zap.String("type", cfg.Database.Type), zap.String("path", cfg.Database.Path))

	blobs, err := blob.NewFromConfig(ctx, cfg.Blob, logger.Named("blob"))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	d.blobs = blobs

	m, closeMailer, err := mailer.NewFromConfig(cfg.Mailer, logger.Named("mailer"))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	d.mailer, d.closeMailer = m, closeMailer

	ext, err := extraction.New(extraction.FromAppConfig(cfg.Extraction))
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create extraction client: %w", err)
	}
	d.extractor = ext
	if !ext.Available() {
		logger.Warn("Extraction disabled, screenshot imports will require manual review")
	}

	return d, nil
}

func initServices(cfg *config.Config, d *dependencies, logger *zap.Logger) (httpserver.Deps, error) {
	submission, report := ratelimit.PoliciesFromConfig(cfg.Limits)
	limiter := ratelimit.New(d.store, logger.Named("ratelimit"))

	contribCfg := contribution.DefaultServiceConfig()
	contribCfg.SubmissionPolicy = submission
	contribCfg.ConfirmBaseURL = cfg.Links.PublicBaseURL
	contribs, err := contribution.NewService(contribCfg, d.store, limiter,
		identity.NewGuard(d.store, logger.Named("identity")), d.mailer, logger.Named("contribution"))
	if err != nil {
		return httpserver.Deps{}, err
	}

	importCfg := imports.DefaultServiceConfig()
	importCfg.MaxImageBytes = cfg.Server.MaxUploadBytes
	importCfg.StageTimeout = cfg.Extraction.StageTimeout.Duration()
	imps, err := imports.NewService(importCfg, d.store, d.blobs, d.extractor, logger.Named("imports"))
	if err != nil {
		return httpserver.Deps{}, err
	}

	mod, err := moderation.NewService(&moderation.Config{
		Policy:        report,
		FlagThreshold: cfg.Limits.AutoFlagThreshold,
	}, d.store, limiter, logger.Named("moderation"))
	if err != nil {
		return httpserver.Deps{}, err
	}

	return httpserver.Deps{
		Contributions: contribs,
		Imports:       imps,
		Signals:       signals.NewService(d.store, signals.Options{}, logger.Named("signals")),
		Moderation:    mod,
		Blobs:         d.blobs,
		Verifier:      auth.HeaderVerifier{Header: cfg.Auth.OwnerHeader},
		Health:        d.store,
	}, nil
}
