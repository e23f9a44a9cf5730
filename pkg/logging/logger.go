// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging assembles the structured logger for vault components.
//
// The vault service and CLI both log through the standard library slog
// package; this package builds the handler stack behind it:
//
//   - Default: stderr output (Unix convention for daemons and CLIs)
//   - Optional: a JSON copy in a log directory, one file per day
//   - Optional: a LogExporter that forwards entries to an external
//     sink (object storage, Loki, an OTLP collector)
//
// # Usage
//
// The service bootstrap builds a Logger from its configuration and
// installs it process-wide:
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.ParseLevel(cfg.Log.Level),
//	    LogDir:  cfg.Log.Dir,
//	    Service: "vault",
//	    JSON:    cfg.Log.JSON,
//	})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// After that, plain slog calls anywhere in the process flow through
// every configured destination:
//
//	slog.Info("deposit committed", "seq", rcpt.Seq, "assets", rcpt.Assets)
//
// # Log levels
//
// Four levels, ordered Debug < Info < Warn < Error. Setting a minimum
// level drops everything below it. Receipts and state transitions log
// at Info; admission failures and degraded modes at Warn; storage and
// transport failures at Error.
//
// # Security
//
// Nothing here redacts. Operator tokens, bearer credentials, and
// genesis balances must not reach a log call:
//
//	// BAD: logs the credential
//	slog.Info("operator call", "token", token)
//
//	// GOOD: logs only its presence
//	slog.Info("operator call", "token_present", token != "")
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level is a log severity. The zero value is LevelDebug.
type Level int

const (
	// LevelDebug traces execution flow during development.
	LevelDebug Level = iota

	// LevelInfo records normal operation: receipts committed, state
	// restored, listeners started.
	LevelInfo

	// LevelWarn records recoverable or degraded conditions: missing
	// optional configuration, a fallback taken.
	LevelWarn

	// LevelError records failed operations the process survives.
	LevelError
)

// ParseLevel maps a configuration string to a Level. Unknown or empty
// strings fall back to LevelInfo so a bad config value never silences
// the log.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// toSlogLevel bridges Level to the standard library.
func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// levelFromSlog is the reverse bridge, used when converting records
// for export.
func levelFromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config controls the handler stack built by New. The zero value logs
// Info and above to stderr as text.
type Config struct {
	// Level is the minimum severity written anywhere.
	Level Level

	// LogDir enables a JSON copy of the log in the named directory.
	// Files are named "{Service}_{YYYY-MM-DD}.log" and appended to
	// across restarts on the same day. The directory is created with
	// 0750 permissions if missing. A leading ~ expands to the home
	// directory. Empty disables file logging.
	LogDir string

	// Service tags every entry with a "service" attribute so
	// aggregated logs can be filtered by component.
	Service string

	// JSON switches stderr output from human-readable text to JSON.
	// File output is always JSON regardless.
	JSON bool

	// Quiet drops the stderr destination. Useful when the process is
	// supervised and only the file or exporter copy matters.
	Quiet bool

	// Exporter, when set, receives every entry at or above Level.
	// See LogExporter for the contract.
	Exporter LogExporter
}

// =============================================================================
// Export Extension
// =============================================================================

// LogExporter forwards log entries to an external sink.
//
// Export is called inline on the logging goroutine with a short
// timeout context, so implementations must buffer internally and
// return quickly; upload in batches from a background goroutine.
// Export errors are dropped: a broken sink must not take down the
// vault's own logging.
//
// Flush is called during shutdown and should block until buffered
// entries are delivered. Close runs after Flush and releases
// connections or file handles.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the exported form of one log record.
type LogEntry struct {
	// Timestamp when the record was created.
	Timestamp time.Time

	// Level of the record.
	Level Level

	// Message is the primary log message.
	Message string

	// Service is the component tag from Config.Service.
	Service string

	// Attrs holds the record's key-value attributes, including any
	// attached by With.
	Attrs map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger owns a handler stack and the resources behind it (the log
// file, the exporter). It is safe for concurrent use. Close must be
// called when the process shuts down so the file syncs and the
// exporter flushes.
type Logger struct {
	slog   *slog.Logger
	config Config

	// file is nil when file logging is disabled or the directory
	// could not be created.
	file *os.File

	exporter LogExporter
	mu       sync.Mutex
}

// New builds a Logger from the configuration. Destinations that fail
// to set up (an unwritable LogDir) are skipped rather than failing the
// boot; there is always at least a stderr handler.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	}

	var handlers []slog.Handler
	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{
		config:   config,
		exporter: config.Exporter,
	}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			serviceName := config.Service
			if serviceName == "" {
				serviceName = "vault"
			}
			filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
			logPath := filepath.Join(logDir, filename)

			file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				logger.file = file
				// File copies are for machines; always JSON.
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
			}
		}
	}

	if config.Exporter != nil {
		handlers = append(handlers, &exportHandler{
			exporter: config.Exporter,
			service:  config.Service,
			minLevel: config.Level.toSlogLevel(),
		})
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with nothing else configured still gets stderr, so a
		// misconfigured daemon is never mute.
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns a Logger with Info level, text output on stderr,
// tagged as the vault service.
func Default() *Logger {
	return New(Config{
		Level:   LevelInfo,
		Service: "vault",
	})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a child Logger carrying extra attributes on every
// entry. The child shares the parent's file and exporter; closing
// either closes both.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		file:     l.file,
		exporter: l.exporter,
	}
}

// Slog exposes the underlying slog.Logger. The service bootstrap
// installs this with slog.SetDefault so plain slog calls anywhere in
// the process reach every configured destination.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes the exporter and syncs the log file. It returns the
// first error encountered; later cleanup still runs.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing log exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log exporter: %w", err))
		}
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("syncing log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// =============================================================================
// Export Handler (Internal)
// =============================================================================

// exportHandler adapts a LogExporter to slog.Handler so exported
// entries ride the same pipeline as stderr and file output, including
// attributes attached via With.
type exportHandler struct {
	exporter LogExporter
	service  string
	minLevel slog.Level
	attrs    []slog.Attr
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *exportHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Service:   h.service,
		Attrs:     make(map[string]any, r.NumAttrs()+len(h.attrs)),
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	for _, a := range h.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Any()
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = h.exporter.Export(ctx, entry)
	return nil
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &exportHandler{
		exporter: h.exporter,
		service:  h.service,
		minLevel: h.minLevel,
		attrs:    merged,
	}
}

// WithGroup flattens groups; exported attributes keep their leaf keys.
func (h *exportHandler) WithGroup(string) slog.Handler {
	return h
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans one record out to several slog handlers, each with
// its own format and level gate.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any destination wants the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers the record to every enabled destination.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Helper Functions
// =============================================================================

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// =============================================================================
// Built-in Exporters
// =============================================================================

// NopExporter discards every entry. Used where an exporter is required
// but export is disabled.
type NopExporter struct{}

func (e *NopExporter) Export(context.Context, LogEntry) error { return nil }
func (e *NopExporter) Flush(context.Context) error            { return nil }
func (e *NopExporter) Close() error                           { return nil }

var _ LogExporter = (*NopExporter)(nil)

// BufferedExporter collects entries in memory. Tests use it to assert
// on what was logged:
//
//	exporter := logging.NewBufferedExporter()
//	logger := logging.New(logging.Config{Exporter: exporter, Quiet: true})
//	logger.Info("deposit committed", "seq", 7)
//	entries := exporter.Entries()
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter returns an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{
		entries: make([]LogEntry, 0, 100),
	}
}

// Export appends the entry to the buffer.
func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op; entries are already in memory.
func (e *BufferedExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the collected entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

// WriterExporter writes one line per entry to an io.Writer.
type WriterExporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterExporter wraps the writer. The exporter does not own it;
// Close leaves it open.
func NewWriterExporter(w io.Writer) *WriterExporter {
	return &WriterExporter{w: w}
}

// Export writes the entry as a single formatted line.
func (e *WriterExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := fmt.Fprintf(e.w, "[%s] %s: %s %v\n",
		entry.Timestamp.Format(time.RFC3339),
		entry.Level,
		entry.Message,
		entry.Attrs,
	)
	return err
}

// Flush is a no-op; writes are immediate.
func (e *WriterExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *WriterExporter) Close() error { return nil }
