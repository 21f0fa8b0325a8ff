// Package logging provides a tiny abstraction over structured loggers so
// downstream code can depend on a minimal interface (Logger) while allowing
// users to plug slog, zap or any other structured logger.
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng, err := engine.New(func(o *engine.Options) { o.Logger = logger })
//
// or, backed by zap:
//
//	zl, err := logging.NewZapLogger(logging.LogLevelDebug, "console")
//
// Components log dotted event names with key/value pairs, e.g.
// logger.Warn("composer.provider.failed", "provider", name, "error", err).
package logging
