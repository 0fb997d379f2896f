// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for Aleutian services.
//
// The package is built on Go's standard library slog, adding JSON output to
// stdout plus an optional per-service log file:
//
//   - Default: JSON on stdout for container log collection
//   - Optional: file logging with automatic directory creation
//
// # Basic Usage
//
//	logger := logging.Default("auditd")
//	logger.Info("starting server", "port", port)
//
// # File Logging
//
// To enable file logging alongside stdout:
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.aleutian/logs",  // Supports ~ expansion
//	    Service: "auditd",
//	})
//	defer logger.Close()  // Important: flushes and closes file
//
// This creates log files named {service}_{date}.log in JSON format.
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog.Logger is
// thread-safe; file closing is protected by a mutex.
package logging

import (
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

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level's conventional upper-case name.
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

// =============================================================================
// Configuration
// =============================================================================

// Config holds logger configuration.
type Config struct {
	// Level is the minimum severity to emit. Default: LevelInfo.
	Level Level

	// LogDir enables file logging when non-empty. The directory is created
	// if missing; "~" expands to the user's home directory.
	LogDir string

	// Service names the emitting service; it becomes the log file prefix
	// and a "service" attribute on every record. Default: "aleutian".
	Service string

	// Output overrides the primary destination. Default: os.Stdout.
	// Intended for tests.
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog with optional file teeing.
type Logger struct {
	slogger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// New creates a Logger from the configuration.
//
// # Description
//
// Emits JSON records to the configured output (stdout by default). When
// LogDir is set, records are teed into {service}_{yyyy-mm-dd}.log in that
// directory. A file that cannot be opened degrades to output-only logging
// rather than failing construction; the error is returned so the caller can
// log it.
func New(config Config) (*Logger, error) {
	service := config.Service
	if service == "" {
		service = "aleutian"
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	l := &Logger{}
	var fileErr error
	writer := out
	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fileErr = fmt.Errorf("create log dir: %w", err)
		} else {
			name := fmt.Sprintf("%s_%s.log", service, time.Now().UTC().Format("2006-01-02"))
			f, err := os.OpenFile(filepath.Join(dir, name),
				os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				fileErr = fmt.Errorf("open log file: %w", err)
			} else {
				l.file = f
				writer = io.MultiWriter(out, f)
			}
		}
	}

	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: config.Level.toSlogLevel(),
	})
	l.slogger = slog.New(handler).With("service", service)
	return l, fileErr
}

// Default returns a stdout-only Logger at Info level.
func Default(service string) *Logger {
	l, _ := New(Config{Service: service})
	return l
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }

// Info logs at info level.
func (l *Logger) Info(msg string, args ...any) { l.slogger.Info(msg, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slogger.Warn(msg, args...) }

// Error logs at error level.
func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// With returns a Logger carrying additional attributes. The derived Logger
// shares the parent's file; only the root Logger should be closed.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...), file: nil}
}

// Slog exposes the underlying slog.Logger so it can be installed as the
// process default via slog.SetDefault.
func (l *Logger) Slog() *slog.Logger {
	return l.slogger
}

// Close flushes and closes the log file, if any. Safe to call multiple
// times.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// expandPath expands a leading "~" to the user's home directory.
func expandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
