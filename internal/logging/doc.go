// Package logging provides structured logging for nomee on top of Zap.
//
// The Logger adds:
//   - a Trace level below Debug
//   - automatic correlation fields from context (trace_id, request.id, owner.id)
//   - redaction of sensitive keys such as email, token and api_key
//   - level-aware sampling (errors are never sampled)
//
// Usage:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRequestID(ctx, "req-42")
//	logger.Info(ctx, "import processed", zap.String("import.id", id))
//
// Services that only need a plain *zap.Logger take Logger.Underlying().
//
// Tests use NewTestLogger, which records every entry for assertions.
package logging
