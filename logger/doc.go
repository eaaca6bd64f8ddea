// Package logger provides structured logging capabilities.
//
// The logger package builds the application's zap logger from configuration.
// Logs are always written to stderr so that the stdio MCP transport owns
// stdout exclusively.
//
// Usage:
//
//	logger, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("Application started")
//	logger.Error("An error occurred", zap.Error(err))
package logger
