// Package logger provides structured logging functionality for the application.
//
// It configures a log/slog JSON handler with a configurable level and carries
// request-scoped loggers (tagged with trace IDs) through context.Context, so
// stores and workers deep in a call chain log with the same correlation data
// as the HTTP handler that started the work.
package logger
