// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command auditd starts the audit orchestration HTTP server.
//
// This is the main entry point for the containerized audit service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - AUDIT_PORT: HTTP server port (default: 12230)
//   - LLM_BACKEND_TYPE: inference provider - ollama, openai (default: ollama)
//   - AUDIT_DATA_PATH: record store directory (default: ./data/audit)
//   - AUDIT_SEARCH_STRATEGY: knowledge ranking - lexical, semantic (default: lexical)
//   - AUDIT_LOG_DIR: enable file logging into this directory (default: off)
//   - AUDIT_ENABLE_TRACING: export OTLP traces when "true" (default: false)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o auditd ./cmd/auditd
//
//	# Run
//	./auditd
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianAudit/pkg/logging"
	"github.com/AleutianAI/AleutianAudit/services/audit"
)

func main() {
	// Setup structured logging; file logging is optional
	logger, err := logging.New(logging.Config{
		Service: "auditd",
		LogDir:  os.Getenv("AUDIT_LOG_DIR"),
	})
	if err != nil {
		slog.Warn("File logging unavailable, using stdout only", "error", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := audit.Config{
		Port:           getEnvInt("AUDIT_PORT", 12230),
		LLMBackend:     getEnvString("LLM_BACKEND_TYPE", "ollama"),
		DataPath:       getEnvString("AUDIT_DATA_PATH", "./data/audit"),
		SearchStrategy: getEnvString("AUDIT_SEARCH_STRATEGY", "lexical"),
		EnableTracing:  os.Getenv("AUDIT_ENABLE_TRACING") == "true",
		OTelEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	slog.Info("Starting audit service",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"data_path", cfg.DataPath,
		"search_strategy", cfg.SearchStrategy,
	)

	svc, err := audit.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create audit service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Audit service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
