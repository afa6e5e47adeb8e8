// Package logging provides a minimal logging interface and adapters for botmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the webhook, flows and stores use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and BotLogger built on log/slog
//   - ZapAdapter for deployments standardised on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - With, LogTurn and LogClassification helpers usable with any Logger
//   - SkillLogger, the audit trail of skill status changes and chat lines,
//     with the AuditLogger filter and the SlogSink renderer
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	d := webhook.New(engine, store, func(o *webhook.Options) {
//		o.Logger = logging.With(logger, "component", "webhook")
//	})
package logging
