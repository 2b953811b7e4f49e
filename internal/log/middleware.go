package log

import (
	"context"
	"log/slog"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// FromContext extracts the logger stored by the trace middleware
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogInbound logs receipt of a chat event
func (sl *StructuredLogger) LogInbound(ctx context.Context, messageID, address string, isButton bool) {
	fields := NewFields().WithInbound(messageID, address)
	fields["is_button"] = isButton
	sl.logger.InfoContext(ctx, "Inbound event received", fields.ToSlice()...)
}

// LogHandled logs completion of a chat event with the resolved intent
func (sl *StructuredLogger) LogHandled(ctx context.Context, messageID string, userID int64, intent string, elapsed time.Duration) {
	fields := NewFields().
		WithUser(userID).
		WithIntent(intent)
	fields[FieldMessageID] = messageID
	fields[FieldDuration] = elapsed.Milliseconds()
	sl.logger.InfoContext(ctx, "Inbound event handled", fields.ToSlice()...)
}

// LogTransactionRecorded logs a successful ledger insert
func (sl *StructuredLogger) LogTransactionRecorded(ctx context.Context, userID int64, shortID string, amountCents int64, category string) {
	fields := NewFields().
		WithUser(userID).
		WithTransaction(shortID, amountCents, category).
		WithOperation(OpCreate)
	sl.logger.InfoContext(ctx, "Transaction recorded", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, errorType string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithErrorType(errorType).
		WithOperation(operation)
	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
